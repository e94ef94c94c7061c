package ocr

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errNoCandidates = errors.New("model produced no decoded text")

// Invoker drives a Model through preprocess, generate and decode.
type Invoker struct {
	model Model
	// genMu is nil when the model may generate concurrently.
	genMu *sync.Mutex
}

// NewInvoker wraps model. When serialize is set only one Generate call runs at a time;
// preprocessing and decoding are never serialized.
func NewInvoker(model Model, serialize bool) *Invoker {
	inv := &Invoker{model: model}
	if serialize {
		inv.genMu = &sync.Mutex{}
	}
	return inv
}

func (i *Invoker) Name() string { return "trocr" }

func (i *Invoker) Device() string { return i.model.Device() }

// Recognize returns the first decoded candidate for img. It blocks until the model
// finishes; ctx is not consulted once generation has started.
func (i *Invoker) Recognize(ctx context.Context, img *NormalizedImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", inferenceFailure(err)
	}

	features, err := i.model.Preprocess(img)
	if err != nil {
		return "", inferenceFailure(fmt.Errorf("preprocess: %w", err))
	}

	sequences, err := i.generate(features)
	if err != nil {
		return "", inferenceFailure(fmt.Errorf("generate: %w", err))
	}

	texts, err := i.model.Decode(sequences)
	if err != nil {
		return "", inferenceFailure(fmt.Errorf("decode: %w", err))
	}
	if len(texts) == 0 {
		return "", inferenceFailure(errNoCandidates)
	}
	return texts[0], nil
}

func (i *Invoker) generate(features *FeatureTensor) ([]TokenSequence, error) {
	if i.genMu != nil {
		i.genMu.Lock()
		defer i.genMu.Unlock()
	}
	return i.model.Generate(features)
}
