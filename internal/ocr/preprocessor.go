package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Source tells where an image came from
type Source string

const (
	// SourceImport is an image picked from storage, used as-is
	SourceImport Source = "import"
	// SourceCapture is a camera frame; the sensor delivers it rotated
	SourceCapture Source = "capture"
)

// Prepared is an image ready for recognition. Width and Height are the
// dimensions of Data, i.e. the coordinate space of the OCR boxes.
type Prepared struct {
	Data   []byte
	Width  int
	Height int
}

// Preprocessor handles image preparation before OCR
type Preprocessor struct {
	maxDimension int
	grayscale    bool
}

// NewPreprocessor creates a new image preprocessor. A maxDimension of 0
// disables downscaling.
func NewPreprocessor(maxDimension int, grayscale bool) *Preprocessor {
	return &Preprocessor{
		maxDimension: maxDimension,
		grayscale:    grayscale,
	}
}

// Prepare decodes the image, applies capture rotation, optional downscale and
// grayscale, and re-encodes it as PNG for the engine. Imports honor their
// EXIF orientation; captures ignore it and get the fixed rotation only.
func (p *Preprocessor) Prepare(imageData []byte, source Source) (*Prepared, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(source != SourceCapture))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = p.transform(img, source)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds := img.Bounds()
	return &Prepared{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func (p *Preprocessor) transform(img image.Image, source Source) image.Image {
	// Camera frames arrive rotated; turn them 90 degrees clockwise.
	if source == SourceCapture {
		img = imaging.Rotate270(img)
	}

	if p.maxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > p.maxDimension || b.Dy() > p.maxDimension {
			img = imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)
		}
	}

	if p.grayscale {
		img = imaging.Grayscale(img)
	}
	return img
}
