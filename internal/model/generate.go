package model

import (
	"errors"
	"fmt"
)

// stepFunc returns the logits for the next token given the tokens so far.
type stepFunc func(ids []int64) ([]float32, error)

var errEmptyLogits = errors.New("decoder returned empty logits")

// greedyDecode runs autoregressive argmax decoding from the start token until EOS or
// until the sequence holds cfg.MaxLength tokens.
func greedyDecode(cfg *GenerationConfig, step stepFunc) ([]int64, error) {
	if cfg.MaxLength < 1 {
		return nil, fmt.Errorf("invalid max length %d", cfg.MaxLength)
	}

	ids := make([]int64, 1, cfg.MaxLength)
	ids[0] = cfg.DecoderStartTokenID

	for len(ids) < cfg.MaxLength {
		logits, err := step(ids)
		if err != nil {
			return nil, fmt.Errorf("decoder step %d: %w", len(ids), err)
		}
		next, err := argmax(logits)
		if err != nil {
			return nil, err
		}
		ids = append(ids, next)
		if next == cfg.EOSTokenID {
			break
		}
	}
	return ids, nil
}

// argmax picks the lowest index among equal maxima so decoding stays deterministic.
func argmax(logits []float32) (int64, error) {
	if len(logits) == 0 {
		return 0, errEmptyLogits
	}
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return int64(best), nil
}

// lastPosition slices the logits of the final sequence position out of a
// [1, seqLen, vocab] tensor.
func lastPosition(data []float32, shape []int64) ([]float32, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected logits shape %v", shape)
	}
	seqLen, vocab := int(shape[1]), int(shape[2])
	if seqLen == 0 || vocab == 0 || len(data) < seqLen*vocab {
		return nil, fmt.Errorf("logits shape %v does not match %d values", shape, len(data))
	}
	start := (seqLen - 1) * vocab
	return data[start : start+vocab], nil
}
