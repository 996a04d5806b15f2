package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

func testService(t *testing.T) *Service {
	t.Helper()
	s := NewService(t.TempDir())
	s.now = func() time.Time {
		return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	}
	return s
}

func detection(name string, box results.Box, conf float32) results.Detection {
	return results.Detection{ClassName: name, Confidence: conf, BBox: box}
}

func TestBuildClassTableClientAuthoritative(t *testing.T) {
	table, err := buildClassTable([]string{"helmet", "person"}, map[int]string{5: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, []ClassEntry{{0, "helmet"}, {1, "person"}}, table.Entries())
	id, fellBack := table.Resolve("person")
	assert.Equal(t, 1, id)
	assert.False(t, fellBack)
}

func TestBuildClassTableDetectorVocabularyPreservesGaps(t *testing.T) {
	table, err := buildClassTable(nil, map[int]string{7: "vest", 0: "helmet"})
	require.NoError(t, err)

	assert.Equal(t, []ClassEntry{{0, "helmet"}, {7, "vest"}}, table.Entries())
	id, _ := table.Resolve("vest")
	assert.Equal(t, 7, id)
}

func TestBuildClassTableNoVocabulary(t *testing.T) {
	_, err := buildClassTable(nil, nil)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestResolveFallbacks(t *testing.T) {
	table, err := buildClassTable([]string{"Helmet", "person"}, nil)
	require.NoError(t, err)

	// Case-insensitive positional fallback.
	id, fellBack := table.Resolve("helmet")
	assert.Equal(t, 0, id)
	assert.False(t, fellBack)

	// Unknown names land on 0, flagged.
	id, fellBack = table.Resolve("giraffe")
	assert.Equal(t, 0, id)
	assert.True(t, fellBack)
}

func TestResolveCaseInsensitiveKeepsGappedID(t *testing.T) {
	table, err := buildClassTable(nil, map[int]string{0: "helmet", 7: "Vest"})
	require.NoError(t, err)

	// The matched entry's ID, not its position in the table.
	id, fellBack := table.Resolve("vest")
	assert.Equal(t, 7, id)
	assert.False(t, fellBack)
}

func TestFormatLabelLineRoundsTiesUp(t *testing.T) {
	norm, ok := results.Normalize(results.Box{100, 100, 50, 50}, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "1 0.195313 0.260417 0.078125 0.104167", FormatLabelLine(1, norm))
}

func TestFormatLabelFile(t *testing.T) {
	assert.Empty(t, FormatLabelFile(nil))
	assert.Equal(t, "a\nb\n", FormatLabelFile([]string{"a", "b"}))
}

func TestSaveWritesDataset(t *testing.T) {
	s := testService(t)

	res, err := s.Save(SaveRequest{
		ProjectName: "site",
		Classes:     []string{"helmet", "person"},
		Images: []Image{
			{
				Name:  "frame1.jpg",
				Data:  []byte("jpegbytes"),
				Width: 640, Height: 480,
				Boxes: []results.Detection{
					detection("person", results.Box{100, 100, 50, 50}, 0.9),
					detection("helmet", results.Box{10, 10, 20, 20}, 0.8),
				},
			},
			{
				Name:  "frame2.jpg",
				Data:  []byte("jpegbytes2"),
				Width: 640, Height: 480,
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalImages)
	assert.Equal(t, 2, res.SavedImages)
	assert.Equal(t, 2, res.SavedLabels)
	assert.Zero(t, res.FallbackBoxes)

	data, err := os.ReadFile(filepath.Join(res.ProjectDir, "labels", "frame1.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"1 0.195313 0.260417 0.078125 0.104167\n0 0.031250 0.041667 0.031250 0.041667\n",
		string(data))

	// Zero detections still produce an empty label file.
	data, err = os.ReadFile(filepath.Join(res.ProjectDir, "labels", "frame2.txt"))
	require.NoError(t, err)
	assert.Empty(t, data)

	img, err := os.ReadFile(filepath.Join(res.ProjectDir, "images", "frame1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(img))
}

func TestSaveInfoJSON(t *testing.T) {
	s := testService(t)

	res, err := s.Save(SaveRequest{
		ProjectName: "site",
		Classes:     []string{"helmet", "person"},
		Images: []Image{{
			Name: "frame1.jpg", Data: []byte("x"), Width: 640, Height: 480,
			Boxes: []results.Detection{detection("person", results.Box{0, 0, 10, 10}, 0.3)},
		}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(res.ProjectDir, "site_info.json"))
	require.NoError(t, err)

	var info infoFile
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "site", info.ProjectName)
	assert.Equal(t, "2025-03-14 15:09:26", info.CreatedAt)
	assert.Equal(t, []ClassEntry{{0, "helmet"}, {1, "person"}}, info.ClassInfo)
	assert.Equal(t, 1, info.SavedImages)
	assert.Equal(t, []string{"frame1.jpg"}, info.LowConfidence)
}

func TestSaveNoVocabularyWritesNothing(t *testing.T) {
	root := t.TempDir()
	s := NewService(root)

	_, err := s.Save(SaveRequest{
		ProjectName: "site",
		Images:      []Image{{Name: "a.jpg", Data: []byte("x"), Width: 64, Height: 64}},
	})
	assert.True(t, errors.Is(err, model.ErrConfiguration))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveSkipsZeroDimensionImages(t *testing.T) {
	s := testService(t)

	res, err := s.Save(SaveRequest{
		ProjectName: "site",
		Classes:     []string{"person"},
		Images: []Image{
			{Name: "bad.jpg", Data: []byte("x"), Width: 0, Height: 480},
			{Name: "good.jpg", Data: []byte("x"), Width: 640, Height: 480},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalImages)
	assert.Equal(t, 1, res.SavedImages)
	assert.NoFileExists(t, filepath.Join(res.ProjectDir, "images", "bad.jpg"))
	assert.NoFileExists(t, filepath.Join(res.ProjectDir, "labels", "bad.txt"))
}

func TestSaveDropsInvalidBoxes(t *testing.T) {
	s := testService(t)

	res, err := s.Save(SaveRequest{
		ProjectName: "site",
		Classes:     []string{"helmet", "person"},
		Images: []Image{{
			Name: "a.jpg", Data: []byte("x"), Width: 640, Height: 480,
			Boxes: []results.Detection{
				detection("person", results.Box{100, 100, 50, 50}, 0.9),
				// Zero size and past the right edge: neither can form a
				// valid label line.
				detection("person", results.Box{100, 100, 0, 0}, 0.9),
				detection("person", results.Box{600, 100, 200, 50}, 0.9),
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedBoxes)
	assert.Zero(t, res.FallbackBoxes)

	data, err := os.ReadFile(filepath.Join(res.ProjectDir, "labels", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1 0.195313 0.260417 0.078125 0.104167\n", string(data))
}

func TestValidLabel(t *testing.T) {
	assert.True(t, validLabel(results.Normalized{0.5, 0.5, 0.1, 0.1}))
	assert.False(t, validLabel(results.Normalized{0.5, 0.5, 0, 0.1}))
	assert.False(t, validLabel(results.Normalized{1.09, 0.5, 0.1, 0.1}))
	assert.False(t, validLabel(results.Normalized{-0.01, 0.5, 0.1, 0.1}))
	assert.False(t, validLabel(results.Normalized{0.5, 0.5, 0.1, 1.2}))
}

func TestSaveCountsFallbackBoxes(t *testing.T) {
	s := testService(t)

	res, err := s.Save(SaveRequest{
		ProjectName: "site",
		Classes:     []string{"person"},
		Images: []Image{{
			Name: "a.jpg", Data: []byte("x"), Width: 640, Height: 480,
			Boxes: []results.Detection{detection("giraffe", results.Box{0, 0, 10, 10}, 0.9)},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FallbackBoxes)

	data, err := os.ReadFile(filepath.Join(res.ProjectDir, "labels", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, byte('0'), data[0])
}

func TestSaveRejectsBadProjectName(t *testing.T) {
	s := testService(t)
	for _, name := range []string{"", "../escape", "a/b"} {
		_, err := s.Save(SaveRequest{ProjectName: name, Classes: []string{"x"}})
		assert.True(t, errors.Is(err, model.ErrBadInput), "name %q", name)
	}
}

func TestSaveClassFile(t *testing.T) {
	s := testService(t)

	path, err := s.SaveClassFile("classes.txt", []string{"helmet", "person"})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "helmet\nperson\n", string(data))

	_, err = s.SaveClassFile("../classes.txt", []string{"x"})
	assert.True(t, errors.Is(err, model.ErrBadInput))
}

func TestSaveLabelFile(t *testing.T) {
	s := testService(t)

	path, err := s.SaveLabelFile("frame1.txt", "0 0.5 0.5 0.1 0.1\n")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0 0.5 0.5 0.1 0.1\n", string(data))

	_, err = s.SaveLabelFile("dir/frame1.txt", "x")
	assert.True(t, errors.Is(err, model.ErrBadInput))
}
