// Package render - draws adapter results onto images for preview output.
package render

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	xdraw "golang.org/x/image/draw"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

const (
	lineThickness = 2
	fontFace      = gocv.FontHersheySimplex
	fontScale     = 0.5
	fontThickness = 1
)

// FrameToMat converts a decoded frame into a BGR Mat for drawing. The
// caller owns the returned Mat.
func FrameToMat(frame *images.Frame) (gocv.Mat, error) {
	rgba, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC4, frame.RGBA.Pix)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "converting frame")
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// previewCap bounds the longer preview dimension; full-resolution output
// is not worth the disk for a review image.
const previewCap = 1280

// Preview draws one result onto the frame and writes the annotated image to
// path. Results stay in original-image coordinates; oversized frames are
// annotated first and downscaled after, so box geometry needs no rescaling.
func Preview(frame *images.Frame, res *model.Result, path string) error {
	mat, err := FrameToMat(frame)
	if err != nil {
		return err
	}
	defer mat.Close()

	Draw(&mat, res)

	out := mat
	if frame.Width > previewCap || frame.Height > previewCap {
		scaled := gocv.NewMat()
		defer scaled.Close()
		w, h := fitDims(frame.Width, frame.Height, previewCap)
		gocv.Resize(mat, &scaled, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		out = scaled
	}

	if ok := gocv.IMWrite(path, out); !ok {
		return errors.Errorf("writing preview %s", path)
	}
	return nil
}

// Thumbnail downscales a frame for preview listings using CatmullRom
// resampling, without drawing any annotations.
func Thumbnail(frame *images.Frame, maxDim int) *images.Frame {
	if frame.Width <= maxDim && frame.Height <= maxDim {
		return frame
	}
	w, h := fitDims(frame.Width, frame.Height, maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), frame.RGBA, frame.RGBA.Bounds(), xdraw.Over, nil)
	return images.FromImage(dst)
}

func fitDims(w, h, maxDim int) (int, int) {
	if w >= h {
		return maxDim, h * maxDim / w
	}
	return w * maxDim / h, maxDim
}

// Draw renders a result onto an existing Mat.
func Draw(mat *gocv.Mat, res *model.Result) {
	if res == nil {
		return
	}
	switch res.TaskType {
	case model.TaskBBox:
		DetectionBoxes(mat, res.Boxes)
	case model.TaskKeypoint:
		Poses(mat, res.Persons)
	case model.TaskText:
		Texts(mat, res.Texts)
	}
}

// DetectionBoxes draws one labeled rectangle per detection, color cycled by
// class id.
func DetectionBoxes(mat *gocv.Mat, boxes []results.Detection) {
	for _, det := range boxes {
		clr := classColor(det.ClassID)
		rect := boxRect(det.BBox)
		gocv.Rectangle(mat, rect, clr, lineThickness)

		label := fmt.Sprintf("%s %.2f", det.ClassName, det.Confidence)
		size := gocv.GetTextSize(label, fontFace, fontScale, fontThickness)
		labelRect := image.Rect(rect.Min.X, rect.Min.Y-size.Y-4, rect.Min.X+size.X+4, rect.Min.Y)
		gocv.Rectangle(mat, labelRect, clr, -1)
		gocv.PutText(mat, label, image.Pt(rect.Min.X+2, rect.Min.Y-3),
			fontFace, fontScale, textColor, fontThickness)
	}
}

// skeleton pairs keypoint indices to connect with limb lines, in the COCO
// topology.
var skeleton = [][2]int{
	{15, 13}, {13, 11}, {16, 14}, {14, 12}, {11, 12},
	{5, 11}, {6, 12}, {5, 6}, {5, 7}, {7, 9},
	{6, 8}, {8, 10}, {1, 2}, {0, 1}, {0, 2},
	{1, 3}, {2, 4}, {3, 5}, {4, 6},
}

// Poses draws skeleton lines and joint circles for every person. Limbs are
// only drawn when both end joints are visible.
func Poses(mat *gocv.Mat, persons []results.Person) {
	for _, person := range persons {
		if person.BBox != nil {
			gocv.Rectangle(mat, boxRect(*person.BBox), limbColor, lineThickness)
		}
		for _, limb := range skeleton {
			a := person.Keypoints[limb[0]]
			b := person.Keypoints[limb[1]]
			if !a.Visible || !b.Visible {
				continue
			}
			gocv.Line(mat, image.Pt(int(a.X), int(a.Y)), image.Pt(int(b.X), int(b.Y)),
				limbColor, lineThickness)
		}
		for _, kp := range person.Keypoints {
			if kp.Visible {
				gocv.Circle(mat, image.Pt(int(kp.X), int(kp.Y)), 3, keypointColor, -1)
			}
		}
	}
}

// Texts outlines each recognized region with its original quadrilateral and
// writes the recognized string above it.
func Texts(mat *gocv.Mat, texts []results.Text) {
	for _, txt := range texts {
		for i := 0; i < 4; i++ {
			a := txt.BBoxPoints[i]
			b := txt.BBoxPoints[(i+1)%4]
			gocv.Line(mat, image.Pt(int(a[0]), int(a[1])), image.Pt(int(b[0]), int(b[1])),
				ocrColor, lineThickness)
		}
		gocv.PutText(mat, txt.Text,
			image.Pt(int(txt.BBox.X()), int(txt.BBox.Y())-4),
			fontFace, fontScale, ocrColor, fontThickness)
	}
}

func boxRect(b results.Box) image.Rectangle {
	return image.Rect(int(b.X()), int(b.Y()), int(b.X()+b.W()), int(b.Y()+b.H()))
}
