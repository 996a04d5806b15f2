package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"

	// Register decoders for the formats uploads arrive in.
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/chai2010/webp"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
)

// FromBytes decodes an encoded image (JPEG, PNG, BMP or WebP) into a Frame.
//
// Non-RGB color modes (paletted, grayscale+alpha, RGBA) are converted to RGB
// by compositing onto a white background, matching what annotation tools
// expect for transparent PNG uploads.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - *Frame: The decoded canonical frame.
//   - error: An error when the bytes are not a supported image.
func FromBytes(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	frame := FromImage(img)
	frame.Format = ImageFormat(format)
	return frame, nil
}

// FromImage converts an already-decoded image into a Frame, compositing any
// alpha onto a white background.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// White first, then source over, so transparent regions come out white
	// instead of black.
	draw.Draw(rgba, rgba.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Over)

	return &Frame{
		RGBA:   rgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
}
