package ocr

import (
	"context"
	"image"
	"image/color"
)

// NormalizedImage holds packed RGB pixels, three bytes per pixel.
type NormalizedImage struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func NewNormalizedImage(r image.Rectangle) *NormalizedImage {
	w, h := r.Dx(), r.Dy()
	return &NormalizedImage{
		Pix:    make([]uint8, 3*w*h),
		Stride: 3 * w,
		Rect:   r,
	}
}

func (m *NormalizedImage) ColorModel() color.Model { return color.RGBAModel }
func (m *NormalizedImage) Bounds() image.Rectangle { return m.Rect }

func (m *NormalizedImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(m.Rect)) {
		return color.RGBA{}
	}
	r, g, b := m.RGBAt(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func (m *NormalizedImage) RGBAt(x, y int) (r, g, b uint8) {
	i := m.PixOffset(x, y)
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

func (m *NormalizedImage) SetRGB(x, y int, r, g, b uint8) {
	i := m.PixOffset(x, y)
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

func (m *NormalizedImage) PixOffset(x, y int) int {
	return (y-m.Rect.Min.Y)*m.Stride + (x-m.Rect.Min.X)*3
}

// FeatureTensor is the preprocessed image, laid out as [batch, channels, height, width].
type FeatureTensor struct {
	Shape  []int64
	Data   []float32
	Device string
}

type TokenSequence []int64

// Model is the loaded recognition model together with its preprocessor and tokenizer.
type Model interface {
	Preprocess(img *NormalizedImage) (*FeatureTensor, error)
	// Generate returns one or more candidate sequences.
	Generate(features *FeatureTensor) ([]TokenSequence, error)
	Decode(sequences []TokenSequence) ([]string, error)
	Device() string
}

// Engine turns a normalized image into text.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img *NormalizedImage) (string, error)
}
