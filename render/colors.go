package render

import "image/color"

var (
	// classColors is the palette cycled per class id when drawing boxes.
	classColors = []color.RGBA{
		{R: 255, G: 56, B: 56, A: 255},
		{R: 255, G: 112, B: 31, A: 255},
		{R: 255, G: 178, B: 29, A: 255},
		{R: 207, G: 210, B: 49, A: 255},
		{R: 72, G: 249, B: 10, A: 255},
		{R: 26, G: 147, B: 52, A: 255},
		{R: 0, G: 212, B: 187, A: 255},
		{R: 0, G: 194, B: 255, A: 255},
		{R: 52, G: 69, B: 147, A: 255},
		{R: 100, G: 115, B: 255, A: 255},
		{R: 0, G: 24, B: 236, A: 255},
		{R: 132, G: 56, B: 255, A: 255},
		{R: 82, G: 0, B: 133, A: 255},
		{R: 255, G: 149, B: 200, A: 255},
		{R: 255, G: 55, B: 199, A: 255},
	}

	// textColor is the label text color drawn over the filled label box.
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	// keypointColor marks visible skeleton joints.
	keypointColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

	// limbColor draws skeleton lines.
	limbColor = color.RGBA{R: 255, G: 128, B: 0, A: 255}

	// ocrColor outlines recognized text regions.
	ocrColor = color.RGBA{R: 0, G: 194, B: 255, A: 255}
)

// classColor cycles the palette. Negative ids (unmatched zero-shot
// phrases) take the last entry so they stand out consistently.
func classColor(classID int) color.RGBA {
	if classID < 0 {
		return classColors[len(classColors)-1]
	}
	return classColors[classID%len(classColors)]
}
