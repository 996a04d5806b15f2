package pipeline

import (
	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/models/model"
)

// presets are named task lists for common labeling setups.
var presets = map[string][]Task{
	"safety":   {model.TypeDetection, model.TypeKeypoint},
	"document": {model.TypeDetection, model.TypeOCR},
	"full":     {model.TypeDetection, model.TypeKeypoint, model.TypeOCR},
}

// Preset resolves a preset name to its task list.
func Preset(name string) ([]Task, error) {
	tasks, ok := presets[name]
	if !ok {
		return nil, errors.Wrapf(model.ErrBadInput, "unknown preset %q (available: safety, document, full)", name)
	}
	return append([]Task(nil), tasks...), nil
}
