// Package models - registry and factory for model adapters.
package models

import (
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/inference"
	"github.com/autolabel-ai/go-autolabel/models/grounddino"
	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/models/ocr"
	"github.com/autolabel-ai/go-autolabel/models/pose"
	"github.com/autolabel-ai/go-autolabel/models/yolo"
)

// Constructor builds one unloaded adapter instance.
type Constructor func() model.Adapter

var (
	registryOnce sync.Once
	registryMu   sync.RWMutex
	registry     map[model.Name]Constructor
)

// populate fills the registry with every family whose runtime dependency is
// satisfied. A missing ONNX Runtime shared library skips the ONNX-backed
// families instead of failing; the registry then simply offers fewer
// families.
func populate() {
	registry = make(map[model.Name]Constructor)

	if !inference.Available() {
		glog.Warningf("models: ONNX Runtime shared library not found, no built-in families available")
		return
	}

	registry[model.NameYOLO] = func() model.Adapter { return yolo.New() }
	registry[model.NameGroundingDINO] = func() model.Adapter { return grounddino.New() }
	registry[model.NameYOLOPose] = func() model.Adapter { return pose.New() }
	registry[model.NameEasyOCR] = func() model.Adapter { return ocr.New() }
}

// New creates an unloaded adapter for the named family. The error for an
// unknown or unavailable family lists what the registry currently offers.
func New(name model.Name) (model.Adapter, error) {
	registryOnce.Do(populate)

	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(model.ErrUnsupportedModel,
			"%s (available: %s)", name, strings.Join(availableNames(), ", "))
	}
	return ctor(), nil
}

// Register adds or replaces a family constructor at runtime. It is how
// external packages plug custom adapters into the factory.
func Register(name model.Name, ctor Constructor) {
	registryOnce.Do(populate)

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		glog.Warningf("models: replacing registered family %s", name)
	}
	registry[name] = ctor
}

// Available lists the registered family names, sorted.
func Available() []model.Name {
	registryOnce.Do(populate)

	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]model.Name, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func availableNames() []string {
	out := make([]string, 0)
	for _, name := range Available() {
		out = append(out, string(name))
	}
	return out
}
