// Package images - canonical image representation for model input.
package images

import (
	"image"
)

// ImageFormat represents supported encoded image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// Frame is the canonical in-memory pixel representation every adapter
// consumes: an RGB buffer (alpha already composited onto white) plus its
// dimensions. A Frame is immutable once built.
type Frame struct {
	// RGBA holds the pixel data. The alpha channel is always 0xFF.
	RGBA *image.RGBA
	// Width of the frame in pixels.
	Width int
	// Height of the frame in pixels.
	Height int
	// Format is the source encoding, when the frame was decoded from bytes.
	Format ImageFormat
}

// Bounds returns the pixel bounds of the frame.
func (f *Frame) Bounds() image.Rectangle {
	return f.RGBA.Bounds()
}
