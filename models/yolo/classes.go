package yolo

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/models/model"
)

// cocoClasses is the standard 80-class COCO vocabulary, used when the model
// ships without a sidecar class file.
var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag",
	"tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot",
	"hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// loadClasses builds the id -> name table for a model artifact. A sidecar
// file "<model>.classes.json" next to the ONNX takes precedence; it may be
// either a plain name array or an {"<id>": "<name>"} object, the latter
// allowing gaps. Without a sidecar the COCO-80 vocabulary applies.
func loadClasses(modelPath string) (map[int]string, error) {
	sidecar := strings.TrimSuffix(modelPath, ".onnx") + ".classes.json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "reading %s", sidecar)
		}
		names := make(map[int]string, len(cocoClasses))
		for id, name := range cocoClasses {
			names[id] = name
		}
		return names, nil
	}

	names, err := parseClassFile(data)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "%s: %v", sidecar, err)
	}
	glog.Infof("yolo: class table from %s (%d classes)", sidecar, len(names))
	return names, nil
}

func parseClassFile(data []byte) (map[int]string, error) {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		names := make(map[int]string, len(list))
		for id, name := range list {
			names[id] = name
		}
		return names, nil
	}

	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, errors.New("expected a JSON name array or id-to-name object")
	}
	names := make(map[int]string, len(table))
	for key, name := range table {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			return nil, errors.Errorf("invalid class id %q", key)
		}
		names[id] = name
	}
	if len(names) == 0 {
		return nil, errors.New("empty class table")
	}
	return names, nil
}
