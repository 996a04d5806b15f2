// Package results - normalized inference result types shared by every model
// family.
package results

// Box is an axis-aligned bounding box in pixel space, top-left origin,
// stored as [x, y, width, height].
type Box [4]float32

// X returns the left edge.
func (b Box) X() float32 { return b[0] }

// Y returns the top edge.
func (b Box) Y() float32 { return b[1] }

// W returns the width.
func (b Box) W() float32 { return b[2] }

// H returns the height.
func (b Box) H() float32 { return b[3] }

// Normalized is a YOLO-style normalized box: [x_center, y_center, width,
// height], each in [0,1] relative to the full image dimensions.
type Normalized [4]float32

// Normalize converts a pixel box to normalized center coordinates for the
// given image dimensions. Returns the zero value and false when either
// dimension is not a positive integer.
func Normalize(b Box, imgWidth, imgHeight int) (Normalized, bool) {
	if imgWidth <= 0 || imgHeight <= 0 {
		return Normalized{}, false
	}
	w := float32(imgWidth)
	h := float32(imgHeight)
	return Normalized{
		(b[0] + b[2]/2) / w,
		(b[1] + b[3]/2) / h,
		b[2] / w,
		b[3] / h,
	}, true
}

// Denormalize converts a normalized center box back to a pixel box.
func Denormalize(n Normalized, imgWidth, imgHeight int) Box {
	w := float32(imgWidth)
	h := float32(imgHeight)
	bw := n[2] * w
	bh := n[3] * h
	return Box{n[0]*w - bw/2, n[1]*h - bh/2, bw, bh}
}

// Detection is one recognized object instance.
type Detection struct {
	// ClassID is the integer class ID, or -1 when no canonical ID exists
	// (zero-shot models without a matching prompt phrase).
	ClassID int `json:"class_id"`
	// ClassName is the string label.
	ClassName string `json:"class_name"`
	// Confidence in [0,1].
	Confidence float32 `json:"confidence"`
	// BBox is the pixel-space box.
	BBox Box `json:"bbox"`
	// NormalizedCoords is the same geometry relative to the image size.
	NormalizedCoords Normalized `json:"normalized_coords"`
}

// IoU computes intersection over union between two pixel boxes.
func IoU(a, b Box) float32 {
	ax2 := a[0] + a[2]
	ay2 := a[1] + a[3]
	bx2 := b[0] + b[2]
	by2 := b[1] + b[3]

	ix := min32(ax2, bx2) - max32(a[0], b[0])
	iy := min32(ay2, by2) - max32(a[1], b[1])
	if ix <= 0 || iy <= 0 {
		return 0
	}

	inter := ix * iy
	union := a[2]*a[3] + b[2]*b[3] - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
