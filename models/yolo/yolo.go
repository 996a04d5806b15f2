// Package yolo - fixed-vocabulary object detection adapter backed by an
// Ultralytics-style ONNX export.
package yolo

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/inference"
	"github.com/autolabel-ai/go-autolabel/models/model"
)

const (
	// inputSize is the square model input resolution.
	inputSize = 640
	// numCandidates is the anchor-free candidate count of the export.
	numCandidates = 8400
	// nmsThreshold is the IoU threshold used to merge duplicates.
	nmsThreshold = 0.5
)

// runner abstracts the backing inference call so tests can substitute a
// canned tensor.
type runner interface {
	// run executes the model over a 3*640*640 CHW input and returns the raw
	// (4+nc)*8400 output.
	run(input []float32) ([]float32, error)
	destroy()
}

type ortRunner struct {
	session *inference.Session
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
}

func newORTRunner(modelPath string, numClasses int, gpu bool) (*ortRunner, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+numClasses), numCandidates))
	if err != nil {
		in.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	session, err := inference.NewSession(
		modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out},
		gpu,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, err
	}
	return &ortRunner{session: session, in: in, out: out}, nil
}

func (r *ortRunner) run(input []float32) ([]float32, error) {
	copy(r.in.GetData(), input)
	if err := r.session.Run(); err != nil {
		return nil, err
	}
	return r.out.GetData(), nil
}

func (r *ortRunner) destroy() {
	r.session.Destroy()
}

// Detector is the fixed-vocabulary YOLO adapter. The class table is read at
// load time and immutable afterwards; IDs are whatever the artifact
// assigns, gaps included.
type Detector struct {
	mu     sync.RWMutex
	runner runner
	names  map[int]string
	loaded bool
	source string
	device string
}

// New returns an unloaded detector.
func New() *Detector {
	return &Detector{device: "cpu"}
}

// Load initializes the backing ONNX model from a local file path. The class
// table comes from a "<model>.classes.json" sidecar when present, otherwise
// the standard COCO-80 vocabulary is assumed.
func (d *Detector) Load(ctx context.Context, source string, opts model.LoadOptions) (*model.LoadResult, error) {
	if source == "" {
		return nil, errors.Wrap(model.ErrConfiguration, "yolo requires a local model path")
	}
	if err := inference.Initialize(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(source); err != nil {
		return nil, errors.Wrapf(model.ErrNotFound, "%s", source)
	}

	names, err := loadClasses(source)
	if err != nil {
		return nil, err
	}

	// The output tensor is sized by the highest assigned ID, so vocabularies
	// with gaps still line up with the export.
	maxID := 0
	for id := range names {
		if id > maxID {
			maxID = id
		}
	}

	r, err := newORTRunner(source, maxID+1, opts.GPU)
	if err != nil {
		return nil, err
	}

	device := opts.Device()
	d.mu.Lock()
	if d.runner != nil {
		d.runner.destroy()
	}
	d.runner = r
	d.names = names
	d.source = source
	d.device = device
	d.loaded = true
	d.mu.Unlock()

	glog.Infof("yolo: loaded %s (%d classes, %s)", source, len(names), device)
	return &model.LoadResult{
		Message:    "model " + source + " loaded successfully",
		Device:     device,
		NumClasses: len(names),
	}, nil
}

// Predict runs detection over one frame. Detections below the confidence
// threshold (default 0.5) are dropped; when SelectedClasses is non-empty,
// entries whose class name is not listed are dropped after inference.
func (d *Detector) Predict(ctx context.Context, frame *images.Frame, opts model.PredictOptions) (*model.Result, error) {
	d.mu.RLock()
	r := d.runner
	names := d.names
	loaded := d.loaded
	d.mu.RUnlock()

	if !loaded {
		return nil, errors.Wrap(model.ErrNotLoaded, "yolo")
	}
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return nil, errors.Wrap(model.ErrBadInput, "empty frame")
	}

	threshold := opts.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	resized, err := images.ResizeTo(frame, inputSize, inputSize)
	if err != nil {
		return nil, errors.Wrap(model.ErrBadInput, err.Error())
	}
	input := make([]float32, 3*inputSize*inputSize)
	if err := images.ToCHW(resized, input); err != nil {
		return nil, errors.Wrap(model.ErrBadInput, err.Error())
	}

	raw, err := r.run(input)
	if err != nil {
		return nil, errors.Wrap(err, "yolo inference")
	}

	boxes := decodeDetections(raw, names, threshold, frame.Width, frame.Height)
	boxes = filterClasses(boxes, opts.SelectedClasses)

	return &model.Result{
		TaskType:      model.TaskBBox,
		ModelType:     model.NameYOLO,
		Boxes:         boxes,
		NumDetections: len(boxes),
	}, nil
}

// Info returns a snapshot of the adapter state. Callable in any state.
func (d *Detector) Info() model.Info {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info := model.Info{
		ModelType: model.NameYOLO,
		Task:      model.TypeDetection,
		Framework: "onnxruntime",
		Device:    d.device,
		IsLoaded:  d.loaded,
		Source:    d.source,
	}
	if d.loaded {
		info.NumClasses = len(d.names)
		info.ClassNames = sortedNames(d.names)
	}
	return info
}

// Loaded reports whether the adapter is ready for Predict.
func (d *Detector) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Unload releases the backing session.
func (d *Detector) Unload() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runner != nil {
		d.runner.destroy()
		d.runner = nil
	}
	d.loaded = false
	glog.Infof("yolo: unloaded %s", d.source)
}

// Classes returns a copy of the id -> name vocabulary established at load
// time. Empty when unloaded.
func (d *Detector) Classes() map[int]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int]string, len(d.names))
	for id, name := range d.names {
		out[id] = name
	}
	return out
}

func sortedNames(names map[int]string) []string {
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, names[id])
	}
	return out
}
