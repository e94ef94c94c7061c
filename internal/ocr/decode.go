package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels bounds width*height before any pixel buffer is allocated.
const MaxImagePixels = 2 * 89478485

var errEmptyImage = errors.New("image has no pixels")

// DecodeImage parses r and converts it to RGB. Alpha is dropped rather than
// composited, so transparent pixels keep their stored colour.
func DecodeImage(r io.Reader) (*NormalizedImage, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", decodeError(fmt.Errorf("read image: %w", err))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", decodeError(fmt.Errorf("cannot identify image file: %w", err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, decodeError(errEmptyImage)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxImagePixels {
		return nil, format, decodeError(fmt.Errorf("image size (%d pixels) exceeds limit of %d pixels", pixels, MaxImagePixels))
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", decodeError(fmt.Errorf("cannot identify image file: %w", err))
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, decodeError(errEmptyImage)
	}
	return toRGB(src), format, nil
}

func toRGB(src image.Image) *NormalizedImage {
	b := src.Bounds()
	dst := NewNormalizedImage(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch s := src.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := s.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				dst.SetRGB(x, y, v, v, v)
			}
		}
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := s.NRGBAAt(b.Min.X+x, b.Min.Y+y)
				dst.SetRGB(x, y, c.R, c.G, c.B)
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.SetRGB(x, y, c.R, c.G, c.B)
			}
		}
	}
	return dst
}
