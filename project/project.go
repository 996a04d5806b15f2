// Package project - persists labeling results as a YOLO-format dataset:
// images/, labels/, and a project info JSON with the reconciled class
// table.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

// timestampLayout matches the datetime rendering of saved project metadata.
const timestampLayout = "2006-01-02 15:04:05"

// defaultLowConfidence flags images whose best detection is weaker than
// this for review.
const defaultLowConfidence = 0.5

// Image is one labeled image to persist.
type Image struct {
	// Name is the image file name with extension, e.g. "frame_0001.jpg".
	Name string
	// Data is the original encoded bytes, copied into images/ untouched.
	Data []byte
	// Width and Height are the pixel dimensions the detections refer to.
	Width, Height int
	// Boxes are the detections to write as label lines.
	Boxes []results.Detection
}

// SaveRequest describes one project save.
type SaveRequest struct {
	// ProjectName names the dataset directory and the info JSON.
	ProjectName string
	// Classes is the client-supplied ordered class list. When non-empty it
	// is the authoritative vocabulary (ID = position).
	Classes []string
	// DetectorVocabulary is the loaded fixed-vocabulary detector's class
	// table, used when Classes is empty.
	DetectorVocabulary map[int]string
	// Images are the labeled images to persist.
	Images []Image
	// LowConfidence overrides the review threshold, default 0.5.
	LowConfidence float32
}

// SaveResult summarizes what a save wrote.
type SaveResult struct {
	ProjectDir    string       `json:"project_dir"`
	TotalImages   int          `json:"total_images"`
	SavedImages   int          `json:"saved_images"`
	SavedLabels   int          `json:"saved_labels"`
	FallbackBoxes int          `json:"fallback_boxes"`
	SkippedBoxes  int          `json:"skipped_boxes"`
	LowConfidence []string     `json:"low_confidence_images,omitempty"`
	Classes       []ClassEntry `json:"class_info"`
}

type infoFile struct {
	ProjectName   string       `json:"project_name"`
	CreatedAt     string       `json:"created_at"`
	ClassInfo     []ClassEntry `json:"class_info"`
	TotalImages   int          `json:"total_images"`
	SavedImages   int          `json:"saved_images"`
	SavedLabels   int          `json:"saved_labels"`
	FallbackBoxes int          `json:"fallback_boxes"`
	SkippedBoxes  int          `json:"skipped_boxes"`
	LowConfidence []string     `json:"low_confidence_images"`
}

// Service writes projects under a fixed root directory. Every write stays
// inside that root.
type Service struct {
	root string
	now  func() time.Time
}

// NewService returns a service rooted at dir.
func NewService(dir string) *Service {
	return &Service{root: dir, now: time.Now}
}

// Save writes the full YOLO dataset for one request. The class vocabulary
// is established first; without one, nothing is written and the save fails.
// Images with non-positive dimensions are skipped with a warning, never
// fatal to the rest; boxes whose normalized geometry cannot form a valid
// label line are dropped and counted.
func (s *Service) Save(req SaveRequest) (*SaveResult, error) {
	if err := validateName(req.ProjectName); err != nil {
		return nil, err
	}

	table, err := buildClassTable(req.Classes, req.DetectorVocabulary)
	if err != nil {
		return nil, err
	}

	lowConfidence := req.LowConfidence
	if lowConfidence <= 0 {
		lowConfidence = defaultLowConfidence
	}

	projectDir := filepath.Join(s.root, req.ProjectName)
	imagesDir := filepath.Join(projectDir, "images")
	labelsDir := filepath.Join(projectDir, "labels")
	for _, dir := range []string{imagesDir, labelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
	}

	result := &SaveResult{
		ProjectDir:  projectDir,
		TotalImages: len(req.Images),
		Classes:     table.Entries(),
	}

	for _, img := range req.Images {
		if img.Width <= 0 || img.Height <= 0 {
			glog.Warningf("project: skipping %s: non-positive dimensions %dx%d", img.Name, img.Width, img.Height)
			continue
		}
		if err := validateName(img.Name); err != nil {
			glog.Warningf("project: skipping image %q: %v", img.Name, err)
			continue
		}

		if err := os.WriteFile(filepath.Join(imagesDir, img.Name), img.Data, 0o644); err != nil {
			return nil, errors.Wrapf(err, "writing image %s", img.Name)
		}
		result.SavedImages++

		lines := make([]string, 0, len(img.Boxes))
		best := float32(0)
		for _, box := range img.Boxes {
			if box.Confidence > best {
				best = box.Confidence
			}
			norm, ok := results.Normalize(box.BBox, img.Width, img.Height)
			if !ok || !validLabel(norm) {
				glog.Warningf("project: %s: dropping box %v outside the valid label range", img.Name, box.BBox)
				result.SkippedBoxes++
				continue
			}
			id, fellBack := table.Resolve(box.ClassName)
			if fellBack {
				result.FallbackBoxes++
			}
			lines = append(lines, FormatLabelLine(id, norm))
		}

		stem := strings.TrimSuffix(img.Name, filepath.Ext(img.Name))
		labelPath := filepath.Join(labelsDir, stem+".txt")
		if err := os.WriteFile(labelPath, []byte(FormatLabelFile(lines)), 0o644); err != nil {
			return nil, errors.Wrapf(err, "writing labels %s", labelPath)
		}
		result.SavedLabels++

		if len(img.Boxes) > 0 && best < lowConfidence {
			result.LowConfidence = append(result.LowConfidence, img.Name)
		}
	}

	if err := s.writeInfo(projectDir, req.ProjectName, result); err != nil {
		return nil, err
	}

	glog.Infof("project: saved %s (%d/%d images, %d labels)",
		req.ProjectName, result.SavedImages, result.TotalImages, result.SavedLabels)
	return result, nil
}

func (s *Service) writeInfo(projectDir, name string, result *SaveResult) error {
	info := infoFile{
		ProjectName:   name,
		CreatedAt:     s.now().Format(timestampLayout),
		ClassInfo:     result.Classes,
		TotalImages:   result.TotalImages,
		SavedImages:   result.SavedImages,
		SavedLabels:   result.SavedLabels,
		FallbackBoxes: result.FallbackBoxes,
		SkippedBoxes:  result.SkippedBoxes,
		LowConfidence: result.LowConfidence,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding project info")
	}
	path := filepath.Join(projectDir, name+"_info.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// SaveClassFile writes one class-name-per-line text file under the project
// root.
func (s *Service) SaveClassFile(name string, classes []string) (string, error) {
	body := strings.Join(classes, "\n")
	if len(classes) > 0 {
		body += "\n"
	}
	return s.writeContained(name, []byte(body))
}

// SaveLabelFile writes one pre-rendered label file under the project root.
func (s *Service) SaveLabelFile(name, content string) (string, error) {
	return s.writeContained(name, []byte(content))
}

// writeContained writes a single file, rejecting names that would escape
// the project root.
func (s *Service) writeContained(name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, name)
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %s", s.root)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return path, nil
}

// validateName rejects empty names and any path that is not a plain file
// name inside the root.
func validateName(name string) error {
	if name == "" {
		return errors.Wrap(model.ErrBadInput, "empty name")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return errors.Wrapf(model.ErrBadInput, "name %q must not contain path separators", name)
	}
	return nil
}
