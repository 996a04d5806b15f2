package project

import (
	"math"
	"strconv"
	"strings"

	"github.com/autolabel-ai/go-autolabel/results"
)

// formatCoord renders one normalized coordinate with 6 decimal places,
// rounding halves away from zero. YOLO tooling expects exactly this
// rendering, so ties like 0.1953125 must become 0.195313.
func formatCoord(v float32) string {
	rounded := math.Round(float64(v)*1e6) / 1e6
	return strconv.FormatFloat(rounded, 'f', 6, 64)
}

// validLabel reports whether a normalized box may be written as a label
// line: positive size and all four values inside [0,1]. Anything else would
// produce a line YOLO tooling rejects.
func validLabel(n results.Normalized) bool {
	if n[2] <= 0 || n[3] <= 0 {
		return false
	}
	for _, v := range n {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// FormatLabelLine renders one detection as a YOLO label line:
// "class_id x_center y_center width height" over normalized coordinates.
func FormatLabelLine(classID int, n results.Normalized) string {
	parts := [5]string{
		strconv.Itoa(classID),
		formatCoord(n[0]),
		formatCoord(n[1]),
		formatCoord(n[2]),
		formatCoord(n[3]),
	}
	return strings.Join(parts[:], " ")
}

// FormatLabelFile renders a full label file, one line per detection plus a
// trailing newline. Zero lines produce an empty file body.
func FormatLabelFile(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
