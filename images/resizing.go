package images

import (
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// FitWithin downscales a frame so its longer dimension does not exceed cap,
// preserving aspect ratio. Frames already inside the cap are returned as-is.
//
// Returns the (possibly original) frame plus the per-axis scale factors that
// map coordinates detected on the returned frame back onto the original one
// (original_dim / inference_dim).
func FitWithin(frame *Frame, cap int) (*Frame, float32, float32) {
	if cap <= 0 || (frame.Width <= cap && frame.Height <= cap) {
		return frame, 1.0, 1.0
	}

	var newWidth, newHeight int
	if frame.Width > frame.Height {
		newWidth = cap
		newHeight = frame.Height * cap / frame.Width
	} else {
		newHeight = cap
		newWidth = frame.Width * cap / frame.Height
	}

	resized := resize.Resize(uint(newWidth), uint(newHeight), frame.RGBA, resize.Lanczos3)
	out := FromImage(resized)
	out.Format = frame.Format

	scaleX := float32(frame.Width) / float32(out.Width)
	scaleY := float32(frame.Height) / float32(out.Height)
	return out, scaleX, scaleY
}

// ResizeTo scales a frame to exactly width x height, ignoring aspect ratio.
// Model input tensors are square so distortion is accepted here; detected
// coordinates are mapped back using the original dimensions.
func ResizeTo(frame *Frame, width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}
	if frame.Width == width && frame.Height == height {
		return frame, nil
	}

	resized := resize.Resize(uint(width), uint(height), frame.RGBA, resize.Bilinear)
	out := FromImage(resized)
	out.Format = frame.Format
	return out, nil
}

// ToCHW fills dst with the frame's pixels in CHW float32 layout, scaled to
// [0,1]. dst must hold at least 3*width*height values.
func ToCHW(frame *Frame, dst []float32) error {
	plane := frame.Width * frame.Height
	if len(dst) < 3*plane {
		return errors.Errorf("tensor too small: has %d, needs %d", len(dst), 3*plane)
	}

	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			i := frame.RGBA.PixOffset(x, y)
			idx := y*frame.Width + x
			dst[idx] = float32(frame.RGBA.Pix[i]) / 255.0
			dst[plane+idx] = float32(frame.RGBA.Pix[i+1]) / 255.0
			dst[2*plane+idx] = float32(frame.RGBA.Pix[i+2]) / 255.0
		}
	}
	return nil
}
