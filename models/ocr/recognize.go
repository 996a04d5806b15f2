package ocr

import (
	"image"

	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

// recognize crops one detected region from the frame, runs the recognizer
// and CTC-decodes the result.
func (o *Reader) recognize(rec recRunner, charset []rune, frame *images.Frame, quad [4]results.Point) (string, float32, error) {
	crop, err := cropRegion(frame, quad)
	if err != nil {
		return "", 0, err
	}

	resized, err := images.ResizeTo(crop, recWidth, recHeight)
	if err != nil {
		return "", 0, err
	}
	input := make([]float32, 3*recHeight*recWidth)
	if err := images.ToCHW(resized, input); err != nil {
		return "", 0, err
	}

	probs, err := rec.run(input)
	if err != nil {
		return "", 0, errors.Wrap(err, "easyocr recognition")
	}

	text, confidence := ctcDecode(probs, charset)
	return text, confidence, nil
}

func cropRegion(frame *images.Frame, quad [4]results.Point) (*images.Frame, error) {
	box := results.QuadToBox(quad)
	rect := image.Rect(
		int(box.X()), int(box.Y()),
		int(box.X()+box.W()), int(box.Y()+box.H()),
	).Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, errors.Wrap(model.ErrBadInput, "region outside frame")
	}
	return images.FromImage(frame.RGBA.SubImage(rect)), nil
}

// ctcDecode collapses the per-timestep class probabilities greedily:
// repeated classes merge, the blank (class 0) separates. The confidence is
// the mean probability of the emitted characters.
func ctcDecode(probs []float32, charset []rune) (string, float32) {
	numClasses := len(charset) + 1
	if len(probs) < recSeqLen*numClasses {
		return "", 0
	}

	var text []rune
	var confSum float32
	var emitted int
	prev := 0

	for t := 0; t < recSeqLen; t++ {
		row := probs[t*numClasses : (t+1)*numClasses]
		best := 0
		for c := 1; c < numClasses; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		if best != 0 && best != prev {
			text = append(text, charset[best-1])
			confSum += row[best]
			emitted++
		}
		prev = best
	}

	if emitted == 0 {
		return "", 0
	}
	return string(text), confSum / float32(emitted)
}
