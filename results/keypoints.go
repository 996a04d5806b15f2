package results

import (
	"gonum.org/v1/gonum/stat"
)

// NumKeypoints is the fixed COCO pose topology size.
const NumKeypoints = 17

// VisibleThreshold is the confidence above which a keypoint counts as
// visible. Fixed by the COCO annotation convention, not configurable.
const VisibleThreshold = 0.5

// KeypointNames is the fixed COCO-17 keypoint ordering. Keypoint i of every
// Person always refers to KeypointNames[i].
var KeypointNames = [NumKeypoints]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Keypoint is one named point of a pose skeleton.
type Keypoint struct {
	Name        string  `json:"name"`
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	Confidence  float32 `json:"confidence"`
	NormalizedX float32 `json:"normalized_x"`
	NormalizedY float32 `json:"normalized_y"`
	Visible     bool    `json:"visible"`
}

// Person is one detected pose instance. Keypoints always has exactly
// NumKeypoints entries in KeypointNames order.
type Person struct {
	// PersonID is the sequence index within the frame, not stable across
	// frames.
	PersonID      int        `json:"person_id"`
	Keypoints     []Keypoint `json:"keypoints"`
	NumKeypoints  int        `json:"num_keypoints"`
	BBox          *Box       `json:"bbox,omitempty"`
	AvgConfidence float32    `json:"avg_confidence"`
}

// NewPerson assembles a Person from raw keypoint coordinates and
// confidences, normalizing against the image dimensions and computing the
// mean confidence. xy must hold NumKeypoints (x, y) pairs and conf
// NumKeypoints values.
func NewPerson(id int, xy [][2]float32, conf []float32, imgWidth, imgHeight int, bbox *Box) Person {
	kps := make([]Keypoint, NumKeypoints)
	confs := make([]float64, NumKeypoints)

	for i := 0; i < NumKeypoints; i++ {
		x, y := xy[i][0], xy[i][1]
		c := conf[i]
		confs[i] = float64(c)
		kps[i] = Keypoint{
			Name:        KeypointNames[i],
			X:           x,
			Y:           y,
			Confidence:  c,
			NormalizedX: x / float32(imgWidth),
			NormalizedY: y / float32(imgHeight),
			Visible:     c > VisibleThreshold,
		}
	}

	return Person{
		PersonID:      id,
		Keypoints:     kps,
		NumKeypoints:  NumKeypoints,
		BBox:          bbox,
		AvgConfidence: float32(stat.Mean(confs, nil)),
	}
}
