package model

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/ocr-api/internal/ocr"
)

// preprocessImage resizes img to the model's input size and packs it as
// normalized CHW float32 values.
func preprocessImage(cfg *ImageConfig, img *ocr.NormalizedImage, device string) (*ocr.FeatureTensor, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())
	}

	resized := resize.Resize(uint(cfg.Width), uint(cfg.Height), toRGBA(img), resize.Bilinear)

	rb := resized.Bounds()
	width, height := rb.Dx(), rb.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			px := [3]float32{float32(r >> 8), float32(g >> 8), float32(bl >> 8)}

			i := y*width + x
			for c := 0; c < 3; c++ {
				v := px[c] * cfg.RescaleFactor
				if cfg.DoNormalize {
					v = (v - cfg.Mean[c]) / cfg.Std[c]
				}
				data[c*plane+i] = v
			}
		}
	}

	return &ocr.FeatureTensor{
		Shape:  []int64{1, 3, int64(height), int64(width)},
		Data:   data,
		Device: device,
	}, nil
}

func toRGBA(img *ocr.NormalizedImage) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := img.RGBAt(b.Min.X+x, b.Min.Y+y)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = r
			dst.Pix[i+1] = g
			dst.Pix[i+2] = bl
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}
