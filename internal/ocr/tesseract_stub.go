//go:build !tesseract

package ocr

import (
	"context"
	"errors"
)

const TesseractAvailable = false

var errTesseractUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

type TesseractEngine struct{}

func NewTesseractEngine(languages []string) (*TesseractEngine, error) {
	return nil, errTesseractUnavailable
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, img *NormalizedImage) (string, error) {
	return "", inferenceFailure(errTesseractUnavailable)
}
