//go:build tesseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

const TesseractAvailable = true

// TesseractEngine recognizes text with a fresh gosseract client per call.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine(languages []string) (*TesseractEngine, error) {
	return &TesseractEngine{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}, nil
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, img *NormalizedImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", inferenceFailure(err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", inferenceFailure(fmt.Errorf("encode image: %w", err))
	}

	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", inferenceFailure(fmt.Errorf("set languages: %w", err))
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", inferenceFailure(fmt.Errorf("set image: %w", err))
	}
	text, err := c.Text()
	if err != nil {
		return "", inferenceFailure(fmt.Errorf("tesseract: %w", err))
	}
	return strings.TrimSpace(text), nil
}
