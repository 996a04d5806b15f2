// Package grounddino - zero-shot text-prompted detection adapter backed by
// an ONNX Grounding DINO export with a BERT text branch.
package grounddino

import (
	"context"
	"os"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/inference"
	"github.com/autolabel-ai/go-autolabel/models/hub"
	"github.com/autolabel-ai/go-autolabel/models/model"
)

const (
	// inputSize caps the inference resolution; boxes are scaled back to the
	// original dimensions per axis.
	inputSize = 800
	// maxSeqLen is the padded token sequence length of the text branch.
	maxSeqLen = 256
	// numQueries is the detection query count of the export.
	numQueries = 900

	// DefaultRepo is the hub repository used when no source is given.
	DefaultRepo = "IDEA-Research/grounding-dino-tiny-onnx"

	modelFile = "model.onnx"
	vocabFile = "vocab.txt"
)

// runner abstracts one forward pass so tests can substitute canned tensors.
// logits is numQueries x maxSeqLen, predBoxes is numQueries x 4 with
// normalized center coordinates.
type runner interface {
	run(pixels []float32, ids, mask, typeIDs []int64) (logits, predBoxes []float32, err error)
	destroy()
}

type ortRunner struct {
	session *inference.Session

	pixels  *ort.Tensor[float32]
	ids     *ort.Tensor[int64]
	mask    *ort.Tensor[int64]
	typeIDs *ort.Tensor[int64]

	logits *ort.Tensor[float32]
	boxes  *ort.Tensor[float32]
}

func newORTRunner(modelPath string, gpu bool) (r *ortRunner, err error) {
	r = &ortRunner{}
	defer func() {
		if err != nil {
			r.destroyTensors()
		}
	}()

	if r.pixels, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize)); err != nil {
		return nil, errors.Wrap(err, "creating pixel tensor")
	}
	if r.ids, err = ort.NewEmptyTensor[int64](ort.NewShape(1, maxSeqLen)); err != nil {
		return nil, errors.Wrap(err, "creating input_ids tensor")
	}
	if r.mask, err = ort.NewEmptyTensor[int64](ort.NewShape(1, maxSeqLen)); err != nil {
		return nil, errors.Wrap(err, "creating attention_mask tensor")
	}
	if r.typeIDs, err = ort.NewEmptyTensor[int64](ort.NewShape(1, maxSeqLen)); err != nil {
		return nil, errors.Wrap(err, "creating token_type_ids tensor")
	}
	if r.logits, err = ort.NewEmptyTensor[float32](ort.NewShape(1, numQueries, maxSeqLen)); err != nil {
		return nil, errors.Wrap(err, "creating logits tensor")
	}
	if r.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, numQueries, 4)); err != nil {
		return nil, errors.Wrap(err, "creating pred_boxes tensor")
	}

	r.session, err = inference.NewSession(
		modelPath,
		[]string{"pixel_values", "input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits", "pred_boxes"},
		[]ort.ArbitraryTensor{r.pixels, r.ids, r.mask, r.typeIDs},
		[]ort.ArbitraryTensor{r.logits, r.boxes},
		gpu,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ortRunner) run(pixels []float32, ids, mask, typeIDs []int64) ([]float32, []float32, error) {
	copy(r.pixels.GetData(), pixels)
	copy(r.ids.GetData(), ids)
	copy(r.mask.GetData(), mask)
	copy(r.typeIDs.GetData(), typeIDs)
	if err := r.session.Run(); err != nil {
		return nil, nil, err
	}
	return r.logits.GetData(), r.boxes.GetData(), nil
}

func (r *ortRunner) destroy() {
	if r.session != nil {
		r.session.Destroy()
		return
	}
	r.destroyTensors()
}

func (r *ortRunner) destroyTensors() {
	for _, t := range []ort.ArbitraryTensor{r.pixels, r.ids, r.mask, r.typeIDs, r.logits, r.boxes} {
		if t != nil {
			t.Destroy()
		}
	}
}

// Detector is the zero-shot adapter. It has no fixed vocabulary; every
// Predict call carries its own class list in the text prompt, and the class
// IDs it assigns are phrase indices valid only within that call.
type Detector struct {
	mu        sync.RWMutex
	runner    runner
	tokenizer *tokenizer
	loaded    bool
	source    string
	device    string
}

// New returns an unloaded zero-shot detector.
func New() *Detector {
	return &Detector{device: "cpu"}
}

// Load acquires the model. source may be a local .onnx path (with vocab.txt
// next to it) or a hub repository id; empty defaults to DefaultRepo. Hub
// sources are downloaded and cached.
func (d *Detector) Load(ctx context.Context, source string, opts model.LoadOptions) (*model.LoadResult, error) {
	if err := inference.Initialize(); err != nil {
		return nil, err
	}
	if source == "" {
		source = DefaultRepo
	}

	modelPath, vocabPath, err := resolveArtifacts(ctx, source)
	if err != nil {
		return nil, err
	}

	tok, err := loadTokenizer(vocabPath)
	if err != nil {
		return nil, err
	}

	r, err := newORTRunner(modelPath, opts.GPU)
	if err != nil {
		return nil, err
	}

	device := opts.Device()
	d.mu.Lock()
	if d.runner != nil {
		d.runner.destroy()
	}
	d.runner = r
	d.tokenizer = tok
	d.source = source
	d.device = device
	d.loaded = true
	d.mu.Unlock()

	glog.Infof("grounding_dino: loaded %s (%s)", source, device)
	return &model.LoadResult{
		Message:            "model " + source + " loaded successfully",
		Device:             device,
		SupportsTextPrompt: true,
	}, nil
}

func resolveArtifacts(ctx context.Context, source string) (modelPath, vocabPath string, err error) {
	if info, statErr := os.Stat(source); statErr == nil && !info.IsDir() {
		return source, sidecarVocabPath(source), nil
	}

	resolver := hub.DefaultResolver()
	if modelPath, err = resolver.Fetch(ctx, source, modelFile); err != nil {
		return "", "", err
	}
	if vocabPath, err = resolver.Fetch(ctx, source, vocabFile); err != nil {
		return "", "", err
	}
	return modelPath, vocabPath, nil
}

// Predict detects every phrase of the period-delimited text prompt. The
// prompt is required; detections below BoxThreshold (default 0.3) are
// dropped, and phrase association uses TextThreshold (default 0.25).
func (d *Detector) Predict(ctx context.Context, frame *images.Frame, opts model.PredictOptions) (*model.Result, error) {
	d.mu.RLock()
	r := d.runner
	tok := d.tokenizer
	loaded := d.loaded
	d.mu.RUnlock()

	if !loaded {
		return nil, errors.Wrap(model.ErrNotLoaded, "grounding_dino")
	}
	phrases := ParsePrompt(opts.TextPrompt)
	if len(phrases) == 0 {
		return nil, errors.Wrap(model.ErrBadInput, "grounding_dino requires a text prompt")
	}
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return nil, errors.Wrap(model.ErrBadInput, "empty frame")
	}

	enc, err := tok.encodePrompt(phrases)
	if err != nil {
		return nil, errors.Wrap(model.ErrBadInput, err.Error())
	}

	// Cap the longer dimension at the inference resolution, then pad the
	// aspect-preserved content into the square canvas the export expects.
	resized, xScale, yScale := images.FitWithin(frame, inputSize)
	content := make([]float32, 3*resized.Width*resized.Height)
	if err := images.ToCHW(resized, content); err != nil {
		return nil, errors.Wrap(model.ErrBadInput, err.Error())
	}
	normalizePixels(content)
	pixels := make([]float32, 3*inputSize*inputSize)
	padCHW(content, resized.Width, resized.Height, pixels)

	logits, predBoxes, err := r.run(pixels, enc.ids, enc.mask, enc.typeIDs)
	if err != nil {
		return nil, errors.Wrap(err, "grounding_dino inference")
	}

	boxThreshold := opts.BoxThreshold
	if boxThreshold <= 0 {
		boxThreshold = 0.3
	}
	textThreshold := opts.TextThreshold
	if textThreshold <= 0 {
		textThreshold = 0.25
	}

	boxes := decodeQueries(logits, predBoxes, enc, phrases, boxThreshold, textThreshold, xScale, yScale, frame.Width, frame.Height)

	return &model.Result{
		TaskType:      model.TaskBBox,
		ModelType:     model.NameGroundingDINO,
		Boxes:         boxes,
		NumDetections: len(boxes),
		TextPrompt:    opts.TextPrompt,
		PromptClasses: phrases,
	}, nil
}

// PredictBatch runs Predict over every frame, chunked by opts.BatchSize
// (default 4). The output always has one entry per input frame, in input
// order; frames that cannot be processed yield an empty result rather than
// failing the batch.
func (d *Detector) PredictBatch(ctx context.Context, frames []*images.Frame, opts model.PredictOptions) ([]*model.Result, error) {
	if !d.Loaded() {
		return nil, errors.Wrap(model.ErrNotLoaded, "grounding_dino")
	}
	if len(ParsePrompt(opts.TextPrompt)) == 0 {
		return nil, errors.Wrap(model.ErrBadInput, "grounding_dino requires a text prompt")
	}

	chunk := opts.BatchSize
	if chunk <= 0 {
		chunk = 4
	}

	// The preallocated tensors are batch-1, so a chunk is a bounded run of
	// single-frame invocations rather than one stacked call. Chunk size
	// still bounds work between cancellation checks, and output length and
	// order match the input either way.
	out := make([]*model.Result, len(frames))
	for start := 0; start < len(frames); start += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunk
		if end > len(frames) {
			end = len(frames)
		}
		for i := start; i < end; i++ {
			res, err := d.Predict(ctx, frames[i], opts)
			if err != nil {
				glog.Warningf("grounding_dino: batch frame %d skipped: %v", i, err)
				res = &model.Result{
					TaskType:      model.TaskBBox,
					ModelType:     model.NameGroundingDINO,
					TextPrompt:    opts.TextPrompt,
					PromptClasses: ParsePrompt(opts.TextPrompt),
				}
			}
			out[i] = res
		}
	}
	return out, nil
}

// Info returns a snapshot of the adapter state.
func (d *Detector) Info() model.Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return model.Info{
		ModelType:          model.NameGroundingDINO,
		Task:               model.TypeDetection,
		Framework:          "onnxruntime",
		Device:             d.device,
		IsLoaded:           d.loaded,
		Source:             d.source,
		SupportsTextPrompt: true,
		SupportsBatch:      true,
		ZeroShot:           true,
	}
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
	d.tokenizer = nil
	d.loaded = false
	glog.Infof("grounding_dino: unloaded %s", d.source)
}

// padCHW copies a CHW content block of the given dimensions into the
// top-left corner of the square inputSize canvas, channel by channel.
func padCHW(content []float32, width, height int, dst []float32) {
	srcPlane := width * height
	dstPlane := inputSize * inputSize
	for c := 0; c < 3; c++ {
		for y := 0; y < height; y++ {
			src := content[c*srcPlane+y*width : c*srcPlane+(y+1)*width]
			copy(dst[c*dstPlane+y*inputSize:], src)
		}
	}
}

// normalizePixels applies the ImageNet mean/std the text-image backbone was
// trained with, in place over CHW [0,1] data.
func normalizePixels(chw []float32) {
	means := [3]float32{0.485, 0.456, 0.406}
	stds := [3]float32{0.229, 0.224, 0.225}
	plane := len(chw) / 3
	for c := 0; c < 3; c++ {
		for i := c * plane; i < (c+1)*plane; i++ {
			chw[i] = (chw[i] - means[c]) / stds[c]
		}
	}
}
