package yolo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/autolabel-ai/go-autolabel/results"
)

// decodeDetections converts the raw (4+nc)x8400 output into thresholded,
// NMS-merged detections in original-image pixel coordinates. The raw layout
// is channel-major: row c holds value c for all 8400 candidates, rows 0..3
// are center-x, center-y, width, height in input resolution, rows 4.. are
// per-class scores.
func decodeDetections(raw []float32, names map[int]string, threshold float32, imgWidth, imgHeight int) []results.Detection {
	numClasses := len(raw)/numCandidates - 4
	if numClasses <= 0 {
		return nil
	}

	xScale := float32(imgWidth) / float32(inputSize)
	yScale := float32(imgHeight) / float32(inputSize)

	var boxes []results.Detection
	for i := 0; i < numCandidates; i++ {
		classID := 0
		score := float32(0)
		for c := 0; c < numClasses; c++ {
			if s := raw[(4+c)*numCandidates+i]; s > score {
				score = s
				classID = c
			}
		}
		if score < threshold {
			continue
		}

		cx := raw[0*numCandidates+i] * xScale
		cy := raw[1*numCandidates+i] * yScale
		w := raw[2*numCandidates+i] * xScale
		h := raw[3*numCandidates+i] * yScale

		box := results.Box{cx - w/2, cy - h/2, w, h}
		norm, _ := results.Normalize(box, imgWidth, imgHeight)
		boxes = append(boxes, results.Detection{
			ClassID:          classID,
			ClassName:        className(names, classID),
			Confidence:       score,
			BBox:             box,
			NormalizedCoords: norm,
		})
	}
	return nonMaxSuppress(boxes, nmsThreshold)
}

// className tolerates gaps in custom vocabularies.
func className(names map[int]string, id int) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("class_%d", id)
}

// nonMaxSuppress keeps the highest-confidence box among overlapping boxes of
// the same class.
func nonMaxSuppress(boxes []results.Detection, iouThreshold float32) []results.Detection {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	var kept []results.Detection
	for _, candidate := range boxes {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == candidate.ClassID && results.IoU(k.BBox, candidate.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// filterClasses keeps only detections whose class name is in the allow
// list. A nil or empty list keeps everything. Matching is case-insensitive.
func filterClasses(boxes []results.Detection, allowed []string) []results.Detection {
	if len(allowed) == 0 {
		return boxes
	}
	want := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		want[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	var kept []results.Detection
	for _, b := range boxes {
		if _, ok := want[strings.ToLower(b.ClassName)]; ok {
			kept = append(kept, b)
		}
	}
	return kept
}
