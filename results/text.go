package results

// Point is a single (x, y) pixel coordinate.
type Point [2]float32

// Text is one OCR hit.
type Text struct {
	// Text is the recognized string.
	Text string `json:"text"`
	// Confidence of the recognition.
	Confidence float32 `json:"confidence"`
	// BBox is the axis-aligned reduction of BBoxPoints.
	BBox Box `json:"bbox"`
	// BBoxPoints are the original 4 corner points, preserved for skewed
	// text.
	BBoxPoints [4]Point `json:"bbox_points"`
	// NormalizedCoords is present only when the image dimensions are known.
	NormalizedCoords *Normalized `json:"normalized_coords,omitempty"`
}

// QuadToBox reduces a 4-point quadrilateral to an axis-aligned [x,y,w,h] box
// by taking the min/max over the corner points.
func QuadToBox(quad [4]Point) Box {
	minX, minY := quad[0][0], quad[0][1]
	maxX, maxY := minX, minY
	for _, p := range quad[1:] {
		minX = min32(minX, p[0])
		minY = min32(minY, p[1])
		maxX = max32(maxX, p[0])
		maxY = max32(maxY, p[1])
	}
	return Box{minX, minY, maxX - minX, maxY - minY}
}

// NewText builds a Text result from a recognized quadrilateral. Normalized
// coordinates are attached only when both image dimensions are positive.
func NewText(text string, confidence float32, quad [4]Point, imgWidth, imgHeight int) Text {
	box := QuadToBox(quad)
	out := Text{
		Text:       text,
		Confidence: confidence,
		BBox:       box,
		BBoxPoints: quad,
	}
	if norm, ok := Normalize(box, imgWidth, imgHeight); ok {
		out.NormalizedCoords = &norm
	}
	return out
}
