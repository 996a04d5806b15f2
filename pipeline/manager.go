// Package pipeline - task-slot orchestration over model adapters. A manager
// owns at most one adapter per task slot and routes single, batch and
// multi-task inference through them.
package pipeline

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/models"
	"github.com/autolabel-ai/go-autolabel/models/model"
)

// Task names a pipeline slot. Slots are the four task kinds; each holds at
// most one adapter.
type Task = model.Type

// Tasks lists every valid slot.
var Tasks = []Task{
	model.TypeDetection,
	model.TypeKeypoint,
	model.TypeOCR,
	model.TypeSegmentation,
}

// ValidTask reports whether t names a known slot.
func ValidTask(t Task) bool {
	for _, task := range Tasks {
		if task == t {
			return true
		}
	}
	return false
}

// autoDownload lists families that fetch their artifacts from the hub and
// therefore may be added without a source.
var autoDownload = map[model.Name]bool{
	model.NameGroundingDINO: true,
	model.NameEasyOCR:       true,
}

type slotEntry struct {
	family  model.Name
	adapter model.Adapter
}

// Manager is the slot map plus its lock. Predict calls run outside the
// lock: the run paths borrow the adapter under a read lock and release it
// before inference, so a slow model does not block slot management.
type Manager struct {
	mu      sync.RWMutex
	slots   map[Task]*slotEntry
	factory func(model.Name) (model.Adapter, error)
}

// NewManager returns an empty manager backed by the model registry.
func NewManager() *Manager {
	return &Manager{
		slots:   make(map[Task]*slotEntry),
		factory: models.New,
	}
}

// AddModel constructs the family via the factory, loads it, and installs it
// into the slot. Families that auto-download may omit source; local-artifact
// families must supply one. A displaced occupant is unloaded, so replacing
// a model never leaks its backing session.
func (m *Manager) AddModel(ctx context.Context, task Task, family model.Name, source string, opts model.LoadOptions) (*model.LoadResult, error) {
	if !ValidTask(task) {
		return nil, errors.Wrapf(model.ErrBadInput, "unknown task %q", task)
	}
	if source == "" && !autoDownload[family] {
		return nil, errors.Wrapf(model.ErrConfiguration, "family %s requires a local model source", family)
	}

	adapter, err := m.factory(family)
	if err != nil {
		return nil, err
	}

	result, err := adapter.Load(ctx, source, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s into %s slot", family, task)
	}

	if info := adapter.Info(); info.Task != "" && info.Task != task {
		adapter.Unload()
		return nil, errors.Wrapf(model.ErrConfiguration, "family %s produces %s, not %s", family, info.Task, task)
	}

	m.mu.Lock()
	displaced := m.slots[task]
	m.slots[task] = &slotEntry{family: family, adapter: adapter}
	m.mu.Unlock()

	if displaced != nil {
		glog.Infof("pipeline: replacing %s in %s slot", displaced.family, task)
		displaced.adapter.Unload()
	}

	glog.Infof("pipeline: %s loaded into %s slot", family, task)
	return result, nil
}

// RemoveModel unloads and clears the slot. Removing an empty slot is a
// warning, not an error.
func (m *Manager) RemoveModel(task Task) {
	m.mu.Lock()
	entry := m.slots[task]
	delete(m.slots, task)
	m.mu.Unlock()

	if entry == nil {
		glog.Warningf("pipeline: remove on empty %s slot", task)
		return
	}
	entry.adapter.Unload()
	glog.Infof("pipeline: %s removed from %s slot", entry.family, task)
}

// Clear unloads every occupied slot.
func (m *Manager) Clear() {
	m.mu.Lock()
	entries := m.slots
	m.slots = make(map[Task]*slotEntry)
	m.mu.Unlock()

	for task, entry := range entries {
		entry.adapter.Unload()
		glog.Infof("pipeline: %s removed from %s slot", entry.family, task)
	}
}

// TaskLoaded reports whether the slot holds a loaded adapter.
func (m *Manager) TaskLoaded(task Task) bool {
	m.mu.RLock()
	entry := m.slots[task]
	m.mu.RUnlock()
	return entry != nil && entry.adapter.Loaded()
}

func (m *Manager) borrow(task Task) (*slotEntry, error) {
	m.mu.RLock()
	entry := m.slots[task]
	m.mu.RUnlock()
	if entry == nil {
		return nil, errors.Wrapf(model.ErrNotLoaded, "no model in %s slot", task)
	}
	return entry, nil
}

// RunSingle runs the slot's adapter over one frame.
func (m *Manager) RunSingle(ctx context.Context, task Task, frame *images.Frame, opts model.PredictOptions) (*model.Result, error) {
	entry, err := m.borrow(task)
	if err != nil {
		return nil, err
	}
	return entry.adapter.Predict(ctx, frame, opts)
}

// RunBatch runs the slot's adapter over every frame. Adapters with a native
// batch path are used directly; otherwise frames run one at a time in input
// order. Either way the output has exactly one entry per input frame, with
// a per-frame failure downgraded to an empty result.
func (m *Manager) RunBatch(ctx context.Context, task Task, frames []*images.Frame, opts model.PredictOptions) ([]*model.Result, error) {
	entry, err := m.borrow(task)
	if err != nil {
		return nil, err
	}

	if batcher, ok := entry.adapter.(model.BatchPredictor); ok {
		return batcher.PredictBatch(ctx, frames, opts)
	}

	info := entry.adapter.Info()
	out := make([]*model.Result, len(frames))
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := entry.adapter.Predict(ctx, frame, opts)
		if err != nil {
			glog.Warningf("pipeline: batch frame %d in %s slot skipped: %v", i, task, err)
			res = &model.Result{ModelType: info.ModelType}
		}
		out[i] = res
	}
	return out, nil
}

// MultiResult is one slot's outcome within RunMulti: either a result or the
// triggering error message, never both.
type MultiResult struct {
	Result *model.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// RunMulti runs each named slot against the same frame, independently. A
// failing slot contributes an error entry; sibling slots run regardless.
// Multi-task execution is deliberately not atomic.
func (m *Manager) RunMulti(ctx context.Context, frame *images.Frame, tasks []Task, perTask map[Task]model.PredictOptions) map[Task]MultiResult {
	out := make(map[Task]MultiResult, len(tasks))
	for _, task := range tasks {
		res, err := m.RunSingle(ctx, task, frame, perTask[task])
		if err != nil {
			glog.Errorf("pipeline: %s slot failed: %v", task, err)
			out[task] = MultiResult{Error: err.Error()}
			continue
		}
		out[task] = MultiResult{Result: res}
	}
	return out
}

// Vocabulary returns the fixed id -> name class table of the slot's
// adapter, when it has one. Zero-shot and empty slots report false.
func (m *Manager) Vocabulary(task Task) (map[int]string, bool) {
	m.mu.RLock()
	entry := m.slots[task]
	m.mu.RUnlock()
	if entry == nil {
		return nil, false
	}
	provider, ok := entry.adapter.(model.VocabularyProvider)
	if !ok {
		return nil, false
	}
	classes := provider.Classes()
	if len(classes) == 0 {
		return nil, false
	}
	return classes, true
}

// SlotInfo describes one occupied slot.
type SlotInfo struct {
	Family model.Name `json:"family"`
	Info   model.Info `json:"info"`
}

// Info returns the family and adapter snapshot of every occupied slot.
func (m *Manager) Info() map[Task]SlotInfo {
	m.mu.RLock()
	entries := make(map[Task]*slotEntry, len(m.slots))
	for task, entry := range m.slots {
		entries[task] = entry
	}
	m.mu.RUnlock()

	out := make(map[Task]SlotInfo, len(entries))
	for task, entry := range entries {
		out[task] = SlotInfo{Family: entry.family, Info: entry.adapter.Info()}
	}
	return out
}
