package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/jpeg"
)

// continuityCropFraction is how much of the image height is removed from
// the top and from the bottom before passing it as a continuity anchor.
// Text overlays and borders live in those bands; keeping only the middle
// stops them from leaking into the next illustration.
const continuityCropFraction = 0.15

// CropForContinuity trims the top and bottom bands off an encoded image
// and returns the middle as PNG. Images too small to crop are returned
// unchanged.
func CropForContinuity(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	band := int(float64(bounds.Dy()) * continuityCropFraction)
	if band == 0 || bounds.Dy()-2*band <= 0 {
		return data, nil
	}

	cropped := image.Rect(bounds.Min.X, bounds.Min.Y+band, bounds.Max.X, bounds.Max.Y-band)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	sub, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("image type %T does not support cropping", img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(cropped)); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
