package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoundTrip(t *testing.T) {
	box := Box{100, 100, 50, 50}
	norm, ok := Normalize(box, 640, 480)
	require.True(t, ok)

	assert.InDelta(t, 0.1953125, float64(norm[0]), 1e-6)
	assert.InDelta(t, 0.2604167, float64(norm[1]), 1e-6)
	assert.InDelta(t, 0.078125, float64(norm[2]), 1e-6)
	assert.InDelta(t, 0.1041667, float64(norm[3]), 1e-6)

	back := Denormalize(norm, 640, 480)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, float64(box[i]), float64(back[i]), 1e-3)
	}
}

func TestNormalizeRejectsZeroDimensions(t *testing.T) {
	_, ok := Normalize(Box{0, 0, 10, 10}, 0, 480)
	assert.False(t, ok)
	_, ok = Normalize(Box{0, 0, 10, 10}, 640, -1)
	assert.False(t, ok)
}

func TestIoU(t *testing.T) {
	a := Box{0, 0, 100, 100}
	b := Box{50, 50, 100, 100}
	// 50x50 overlap over 17500 union.
	assert.InDelta(t, 2500.0/17500.0, float64(IoU(a, b)), 1e-4)

	// Disjoint boxes.
	assert.Equal(t, float32(0), IoU(Box{0, 0, 10, 10}, Box{100, 100, 10, 10}))

	// Identical boxes.
	assert.InDelta(t, 1.0, float64(IoU(a, a)), 1e-6)
}

func TestKeypointOrdering(t *testing.T) {
	require.Len(t, KeypointNames, 17)
	assert.Equal(t, "nose", KeypointNames[0])
	assert.Equal(t, "left_shoulder", KeypointNames[5])
	assert.Equal(t, "right_ankle", KeypointNames[16])
}

func TestNewPerson(t *testing.T) {
	xy := make([][2]float32, NumKeypoints)
	conf := make([]float32, NumKeypoints)
	for i := range xy {
		xy[i] = [2]float32{float32(i * 10), float32(i * 5)}
		conf[i] = 0.4
	}
	conf[0] = 0.9 // only the nose is confidently visible

	p := NewPerson(3, xy, conf, 640, 480, nil)
	require.Len(t, p.Keypoints, 17)
	assert.Equal(t, 3, p.PersonID)
	assert.Equal(t, 17, p.NumKeypoints)

	for i, kp := range p.Keypoints {
		assert.Equal(t, KeypointNames[i], kp.Name)
	}
	assert.True(t, p.Keypoints[0].Visible)
	assert.False(t, p.Keypoints[1].Visible)
	assert.InDelta(t, float64(xy[4][0])/640.0, float64(p.Keypoints[4].NormalizedX), 1e-6)

	// Mean of 16*0.4 + 0.9.
	assert.InDelta(t, (16*0.4+0.9)/17.0, float64(p.AvgConfidence), 1e-5)
}

func TestQuadToBox(t *testing.T) {
	quad := [4]Point{{10, 20}, {110, 25}, {108, 60}, {8, 55}}
	box := QuadToBox(quad)
	assert.Equal(t, Box{8, 20, 102, 40}, box)
}

func TestNewTextNormalization(t *testing.T) {
	quad := [4]Point{{0, 0}, {64, 0}, {64, 48}, {0, 48}}

	withDims := NewText("hello", 0.9, quad, 640, 480)
	require.NotNil(t, withDims.NormalizedCoords)
	assert.InDelta(t, 0.05, float64(withDims.NormalizedCoords[0]), 1e-6)

	noDims := NewText("hello", 0.9, quad, 0, 0)
	assert.Nil(t, noDims.NormalizedCoords)
	assert.Equal(t, quad, noDims.BBoxPoints)
}
