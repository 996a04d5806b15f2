package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/models/model"
)

type fakeAdapter struct {
	task       model.Type
	family     model.Name
	loadErr    error
	predictErr error
	loaded     bool
	unloads    int
	predicts   int
}

func (f *fakeAdapter) Load(ctx context.Context, source string, opts model.LoadOptions) (*model.LoadResult, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.loaded = true
	return &model.LoadResult{Message: "ok", Device: "cpu"}, nil
}

func (f *fakeAdapter) Predict(ctx context.Context, frame *images.Frame, opts model.PredictOptions) (*model.Result, error) {
	f.predicts++
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	return &model.Result{TaskType: model.TaskBBox, ModelType: f.family, NumDetections: 1}, nil
}

func (f *fakeAdapter) Info() model.Info {
	return model.Info{ModelType: f.family, Task: f.task, IsLoaded: f.loaded}
}

func (f *fakeAdapter) Loaded() bool { return f.loaded }

func (f *fakeAdapter) Unload() {
	f.loaded = false
	f.unloads++
}

type fakeBatchAdapter struct {
	fakeAdapter
	batchCalls int
}

func (f *fakeBatchAdapter) PredictBatch(ctx context.Context, frames []*images.Frame, opts model.PredictOptions) ([]*model.Result, error) {
	f.batchCalls++
	out := make([]*model.Result, len(frames))
	for i := range frames {
		out[i] = &model.Result{TaskType: model.TaskBBox, ModelType: f.family}
	}
	return out, nil
}

// managerWith wires a manager whose factory hands out the given adapters by
// family name.
func managerWith(adapters map[model.Name]model.Adapter) *Manager {
	m := NewManager()
	m.factory = func(name model.Name) (model.Adapter, error) {
		a, ok := adapters[name]
		if !ok {
			return nil, errors.Wrapf(model.ErrUnsupportedModel, "%s", name)
		}
		return a, nil
	}
	return m
}

func testFrame(w, h int) *images.Frame {
	return images.FromImage(image.NewRGBA(image.Rect(0, 0, w, h)))
}

func TestAddModelAndRunSingle(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})

	res, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "model.onnx", model.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Message)
	assert.True(t, m.TaskLoaded(model.TypeDetection))

	out, err := m.RunSingle(context.Background(), model.TypeDetection, testFrame(64, 64), model.PredictOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumDetections)
	assert.Equal(t, 1, fake.predicts)
}

func TestAddModelRequiresSourceForLocalFamilies(t *testing.T) {
	m := managerWith(nil)
	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "", model.LoadOptions{})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestAddModelAutoDownloadMayOmitSource(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameGroundingDINO}
	m := managerWith(map[model.Name]model.Adapter{model.NameGroundingDINO: fake})

	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameGroundingDINO, "", model.LoadOptions{})
	require.NoError(t, err)
	assert.True(t, fake.loaded)
}

func TestAddModelUnknownTask(t *testing.T) {
	m := managerWith(nil)
	_, err := m.AddModel(context.Background(), "tracking", model.NameYOLO, "model.onnx", model.LoadOptions{})
	assert.True(t, errors.Is(err, model.ErrBadInput))
}

func TestAddModelLoadFailurePropagates(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO, loadErr: model.ErrNotFound}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})

	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "missing.onnx", model.LoadOptions{})
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.False(t, m.TaskLoaded(model.TypeDetection))
}

func TestAddModelUnloadsDisplacedOccupant(t *testing.T) {
	first := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	second := &fakeAdapter{task: model.TypeDetection, family: model.NameGroundingDINO}
	m := managerWith(map[model.Name]model.Adapter{
		model.NameYOLO:          first,
		model.NameGroundingDINO: second,
	})

	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)
	_, err = m.AddModel(context.Background(), model.TypeDetection, model.NameGroundingDINO, "", model.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, first.unloads)
	assert.True(t, second.loaded)
	assert.Equal(t, model.NameGroundingDINO, m.Info()[model.TypeDetection].Family)
}

func TestAddModelTaskMismatch(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})

	_, err := m.AddModel(context.Background(), model.TypeOCR, model.NameYOLO, "model.onnx", model.LoadOptions{})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
	assert.Equal(t, 1, fake.unloads)
	assert.False(t, m.TaskLoaded(model.TypeOCR))
}

func TestRemoveModel(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})

	// Empty-slot remove is a warning, not an error.
	m.RemoveModel(model.TypeDetection)

	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)
	m.RemoveModel(model.TypeDetection)

	assert.Equal(t, 1, fake.unloads)
	assert.False(t, m.TaskLoaded(model.TypeDetection))
}

func TestClear(t *testing.T) {
	det := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	kp := &fakeAdapter{task: model.TypeKeypoint, family: model.NameYOLOPose}
	m := managerWith(map[model.Name]model.Adapter{
		model.NameYOLO:     det,
		model.NameYOLOPose: kp,
	})

	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)
	_, err = m.AddModel(context.Background(), model.TypeKeypoint, model.NameYOLOPose, "b.onnx", model.LoadOptions{})
	require.NoError(t, err)

	m.Clear()
	assert.Equal(t, 1, det.unloads)
	assert.Equal(t, 1, kp.unloads)
	assert.Empty(t, m.Info())
}

func TestRunSingleEmptySlot(t *testing.T) {
	m := managerWith(nil)
	_, err := m.RunSingle(context.Background(), model.TypeDetection, testFrame(64, 64), model.PredictOptions{})
	assert.True(t, errors.Is(err, model.ErrNotLoaded))
}

func TestRunBatchLoopFallback(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})
	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)

	frames := []*images.Frame{testFrame(64, 64), testFrame(64, 64), testFrame(64, 64)}
	out, err := m.RunBatch(context.Background(), model.TypeDetection, frames, model.PredictOptions{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 3, fake.predicts)
	for _, res := range out {
		assert.Equal(t, 1, res.NumDetections)
	}
}

func TestRunBatchIsolatesPerFrameFailure(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO, predictErr: model.ErrBadInput}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})
	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)

	frames := []*images.Frame{testFrame(64, 64), testFrame(64, 64)}
	out, err := m.RunBatch(context.Background(), model.TypeDetection, frames, model.PredictOptions{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, res := range out {
		require.NotNil(t, res)
		assert.Zero(t, res.NumDetections)
	}
}

func TestRunBatchUsesNativeBatch(t *testing.T) {
	fake := &fakeBatchAdapter{fakeAdapter: fakeAdapter{task: model.TypeDetection, family: model.NameGroundingDINO}}
	m := managerWith(map[model.Name]model.Adapter{model.NameGroundingDINO: fake})
	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameGroundingDINO, "", model.LoadOptions{})
	require.NoError(t, err)

	frames := []*images.Frame{testFrame(64, 64), testFrame(64, 64)}
	out, err := m.RunBatch(context.Background(), model.TypeDetection, frames, model.PredictOptions{})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, fake.batchCalls)
	assert.Zero(t, fake.predicts)
}

func TestRunMultiIsolatesSlotFailure(t *testing.T) {
	good := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	bad := &fakeAdapter{task: model.TypeKeypoint, family: model.NameYOLOPose, predictErr: model.ErrBadInput}
	m := managerWith(map[model.Name]model.Adapter{
		model.NameYOLO:     good,
		model.NameYOLOPose: bad,
	})
	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)
	_, err = m.AddModel(context.Background(), model.TypeKeypoint, model.NameYOLOPose, "b.onnx", model.LoadOptions{})
	require.NoError(t, err)

	out := m.RunMulti(context.Background(), testFrame(64, 64),
		[]Task{model.TypeDetection, model.TypeKeypoint, model.TypeOCR}, nil)
	require.Len(t, out, 3)

	assert.NotNil(t, out[model.TypeDetection].Result)
	assert.Empty(t, out[model.TypeDetection].Error)

	assert.Nil(t, out[model.TypeKeypoint].Result)
	assert.Contains(t, out[model.TypeKeypoint].Error, "bad input")

	// The empty OCR slot is an error entry too, not an abort.
	assert.Contains(t, out[model.TypeOCR].Error, "not loaded")
}

func TestInfo(t *testing.T) {
	fake := &fakeAdapter{task: model.TypeDetection, family: model.NameYOLO}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: fake})
	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)

	info := m.Info()
	require.Len(t, info, 1)
	assert.Equal(t, model.NameYOLO, info[model.TypeDetection].Family)
	assert.True(t, info[model.TypeDetection].Info.IsLoaded)
}

type fakeVocabAdapter struct {
	fakeAdapter
	classes map[int]string
}

func (f *fakeVocabAdapter) Classes() map[int]string { return f.classes }

func TestVocabulary(t *testing.T) {
	vocab := &fakeVocabAdapter{
		fakeAdapter: fakeAdapter{task: model.TypeDetection, family: model.NameYOLO},
		classes:     map[int]string{0: "person", 1: "car"},
	}
	m := managerWith(map[model.Name]model.Adapter{model.NameYOLO: vocab})

	_, ok := m.Vocabulary(model.TypeDetection)
	assert.False(t, ok)

	_, err := m.AddModel(context.Background(), model.TypeDetection, model.NameYOLO, "a.onnx", model.LoadOptions{})
	require.NoError(t, err)

	classes, ok := m.Vocabulary(model.TypeDetection)
	require.True(t, ok)
	assert.Equal(t, "person", classes[0])

	// Adapters without a fixed vocabulary report none.
	plain := &fakeAdapter{task: model.TypeKeypoint, family: model.NameYOLOPose}
	m.factory = func(model.Name) (model.Adapter, error) { return plain, nil }
	_, err = m.AddModel(context.Background(), model.TypeKeypoint, model.NameYOLOPose, "b.onnx", model.LoadOptions{})
	require.NoError(t, err)
	_, ok = m.Vocabulary(model.TypeKeypoint)
	assert.False(t, ok)
}

func TestPreset(t *testing.T) {
	tasks, err := Preset("safety")
	require.NoError(t, err)
	assert.Equal(t, []Task{model.TypeDetection, model.TypeKeypoint}, tasks)

	tasks, err = Preset("full")
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	_, err = Preset("bogus")
	assert.True(t, errors.Is(err, model.ErrBadInput))
}
