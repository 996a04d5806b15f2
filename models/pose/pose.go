// Package pose - COCO-17 keypoint estimation adapter backed by a YOLO pose
// ONNX export.
package pose

import (
	"context"
	"os"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/inference"
	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

const (
	inputSize     = 640
	numCandidates = 8400
	// outputChannels is 4 box values, 1 person score, then x/y/conf for each
	// of the 17 keypoints.
	outputChannels = 4 + 1 + 3*results.NumKeypoints
	nmsThreshold   = 0.5

	// KeypointFormat names the fixed topology every result uses.
	KeypointFormat = "coco_17"
)

type runner interface {
	run(input []float32) ([]float32, error)
	destroy()
}

type ortRunner struct {
	session *inference.Session
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
}

func newORTRunner(modelPath string, gpu bool) (*ortRunner, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, outputChannels, numCandidates))
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

// Estimator is the pose adapter. It detects person instances and emits
// exactly 17 keypoints per person in the fixed COCO order.
type Estimator struct {
	mu     sync.RWMutex
	runner runner
	loaded bool
	source string
	device string
}

// New returns an unloaded estimator.
func New() *Estimator {
	return &Estimator{device: "cpu"}
}

// Load initializes the backing ONNX model from a local file path.
func (e *Estimator) Load(ctx context.Context, source string, opts model.LoadOptions) (*model.LoadResult, error) {
	if source == "" {
		return nil, errors.Wrap(model.ErrConfiguration, "yolo_pose requires a local model path")
	}
	if err := inference.Initialize(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(source); err != nil {
		return nil, errors.Wrapf(model.ErrNotFound, "%s", source)
	}

	r, err := newORTRunner(source, opts.GPU)
	if err != nil {
		return nil, err
	}

	device := opts.Device()
	e.mu.Lock()
	if e.runner != nil {
		e.runner.destroy()
	}
	e.runner = r
	e.source = source
	e.device = device
	e.loaded = true
	e.mu.Unlock()

	glog.Infof("yolo_pose: loaded %s (%s)", source, device)
	return &model.LoadResult{
		Message:      "model " + source + " loaded successfully",
		Device:       device,
		NumKeypoints: results.NumKeypoints,
	}, nil
}

// Predict estimates poses for every person above the confidence threshold
// (default 0.5). Every person carries all 17 keypoints; low-confidence
// keypoints are present but marked not visible.
func (e *Estimator) Predict(ctx context.Context, frame *images.Frame, opts model.PredictOptions) (*model.Result, error) {
	e.mu.RLock()
	r := e.runner
	loaded := e.loaded
	e.mu.RUnlock()

	if !loaded {
		return nil, errors.Wrap(model.ErrNotLoaded, "yolo_pose")
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
		return nil, errors.Wrap(err, "yolo_pose inference")
	}

	persons := decodePersons(raw, threshold, frame.Width, frame.Height)

	return &model.Result{
		TaskType:       model.TaskKeypoint,
		ModelType:      model.NameYOLOPose,
		Persons:        persons,
		NumPersons:     len(persons),
		KeypointFormat: KeypointFormat,
	}, nil
}

// Info returns a snapshot of the adapter state.
func (e *Estimator) Info() model.Info {
	e.mu.RLock()
	defer e.mu.RUnlock()

	info := model.Info{
		ModelType: model.NameYOLOPose,
		Task:      model.TypeKeypoint,
		Framework: "onnxruntime",
		Device:    e.device,
		IsLoaded:  e.loaded,
		Source:    e.source,
	}
	if e.loaded {
		info.NumKeypoints = results.NumKeypoints
		info.KeypointNames = results.KeypointNames[:]
	}
	return info
}

// Loaded reports whether the adapter is ready for Predict.
func (e *Estimator) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Unload releases the backing session.
func (e *Estimator) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runner != nil {
		e.runner.destroy()
		e.runner = nil
	}
	e.loaded = false
	glog.Infof("yolo_pose: unloaded %s", e.source)
}

// decodePersons converts the raw 56x8400 channel-major output into
// thresholded, NMS-merged persons in original-image coordinates.
func decodePersons(raw []float32, threshold float32, imgWidth, imgHeight int) []results.Person {
	xScale := float32(imgWidth) / float32(inputSize)
	yScale := float32(imgHeight) / float32(inputSize)

	type candidate struct {
		box   results.Box
		score float32
		xy    [][2]float32
		conf  []float32
	}

	var candidates []candidate
	for i := 0; i < numCandidates; i++ {
		score := raw[4*numCandidates+i]
		if score < threshold {
			continue
		}

		cx := raw[0*numCandidates+i] * xScale
		cy := raw[1*numCandidates+i] * yScale
		w := raw[2*numCandidates+i] * xScale
		h := raw[3*numCandidates+i] * yScale

		xy := make([][2]float32, results.NumKeypoints)
		conf := make([]float32, results.NumKeypoints)
		for k := 0; k < results.NumKeypoints; k++ {
			xy[k][0] = raw[(5+3*k)*numCandidates+i] * xScale
			xy[k][1] = raw[(6+3*k)*numCandidates+i] * yScale
			conf[k] = raw[(7+3*k)*numCandidates+i]
		}

		candidates = append(candidates, candidate{
			box:   results.Box{cx - w/2, cy - h/2, w, h},
			score: score,
			xy:    xy,
			conf:  conf,
		})
	}

	// Highest-score first, then greedy IoU suppression over person boxes.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	var persons []results.Person
	for _, c := range candidates {
		suppressed := false
		for _, p := range persons {
			if p.BBox != nil && results.IoU(*p.BBox, c.box) > nmsThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		box := c.box
		persons = append(persons, results.NewPerson(len(persons), c.xy, c.conf, imgWidth, imgHeight, &box))
	}
	return persons
}
