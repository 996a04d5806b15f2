// Package ocr - multi-language text detection and recognition adapter. The
// backing artifacts are an ONNX text detector (CRAFT-style region/affinity
// maps) and a CTC recognizer with a character dictionary.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/inference"
	"github.com/autolabel-ai/go-autolabel/models/hub"
	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/results"
)

const (
	// detSize is the square detector input resolution; the output score
	// maps are at half that resolution.
	detSize = 640
	mapSize = detSize / 2

	// recWidth and recHeight are the recognizer crop resolution; recSeqLen
	// is its output sequence length.
	recWidth  = 320
	recHeight = 48
	recSeqLen = 40

	// DefaultRepo is the hub repository used when no source is given.
	DefaultRepo = "autolabel-ai/easyocr-onnx"

	detFile   = "detector.onnx"
	recFile   = "recognizer.onnx"
	charsFile = "chars.txt"
)

// DefaultLanguages is the language set assumed when LoadOptions carries
// none.
var DefaultLanguages = []string{"en", "ko"}

// detRunner produces the region and affinity score maps, each mapSize x
// mapSize, concatenated region-first.
type detRunner interface {
	run(input []float32) ([]float32, error)
	destroy()
}

// recRunner produces recSeqLen x (len(charset)+1) per-timestep character
// probabilities for one crop.
type recRunner interface {
	run(input []float32) ([]float32, error)
	destroy()
}

type ortRunner struct {
	session *inference.Session
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
}

func newORTRunner(modelPath string, inShape, outShape ort.Shape, inName, outName string, gpu bool) (*ortRunner, error) {
	in, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		in.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	session, err := inference.NewSession(
		modelPath,
		[]string{inName}, []string{outName},
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

// Reader is the OCR adapter. A Predict call runs detection over the full
// frame, then recognition over every detected region.
type Reader struct {
	mu        sync.RWMutex
	det       detRunner
	rec       recRunner
	charset   []rune
	languages []string
	loaded    bool
	source    string
	device    string
}

// New returns an unloaded reader.
func New() *Reader {
	return &Reader{device: "cpu"}
}

// Load acquires the detector, recognizer and character dictionary. source
// may be a local directory holding detector.onnx, recognizer.onnx and
// chars.txt, or a hub repository id; empty defaults to DefaultRepo.
//
// The language list does not select per-language artifacts: one detector,
// recognizer and character set jointly cover the supported languages. The
// list is validated for well-formed codes and reported through Info.
func (o *Reader) Load(ctx context.Context, source string, opts model.LoadOptions) (*model.LoadResult, error) {
	if err := inference.Initialize(); err != nil {
		return nil, err
	}
	if source == "" {
		source = DefaultRepo
	}

	languages, err := normalizeLanguages(opts.Languages)
	if err != nil {
		return nil, err
	}

	detPath, recPath, charsPath, err := resolveArtifacts(ctx, source)
	if err != nil {
		return nil, err
	}

	charset, err := loadCharset(charsPath)
	if err != nil {
		return nil, err
	}

	det, err := newORTRunner(detPath,
		ort.NewShape(1, 3, detSize, detSize),
		ort.NewShape(1, mapSize, mapSize, 2),
		"images", "maps", opts.GPU)
	if err != nil {
		return nil, err
	}
	// CTC adds the blank class at index 0.
	rec, err := newORTRunner(recPath,
		ort.NewShape(1, 3, recHeight, recWidth),
		ort.NewShape(1, recSeqLen, int64(len(charset)+1)),
		"images", "logits", opts.GPU)
	if err != nil {
		det.destroy()
		return nil, err
	}

	device := opts.Device()
	o.mu.Lock()
	o.unloadLocked()
	o.det = det
	o.rec = rec
	o.charset = charset
	o.languages = languages
	o.source = source
	o.device = device
	o.loaded = true
	o.mu.Unlock()

	glog.Infof("easyocr: loaded %s (%d characters, languages %v, %s)", source, len(charset), languages, device)
	return &model.LoadResult{
		Message:   "model " + source + " loaded successfully",
		Device:    device,
		Languages: languages,
	}, nil
}

// normalizeLanguages lowercases and trims the requested codes, rejecting
// malformed entries. An empty request means the default set.
func normalizeLanguages(langs []string) ([]string, error) {
	if len(langs) == 0 {
		return append([]string(nil), DefaultLanguages...), nil
	}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		code := strings.ToLower(strings.TrimSpace(l))
		if code == "" {
			return nil, errors.Wrap(model.ErrConfiguration, "empty language code")
		}
		out = append(out, code)
	}
	return out, nil
}

func resolveArtifacts(ctx context.Context, source string) (detPath, recPath, charsPath string, err error) {
	if info, statErr := os.Stat(source); statErr == nil && info.IsDir() {
		return filepath.Join(source, detFile),
			filepath.Join(source, recFile),
			filepath.Join(source, charsFile), nil
	}

	resolver := hub.DefaultResolver()
	if detPath, err = resolver.Fetch(ctx, source, detFile); err != nil {
		return "", "", "", err
	}
	if recPath, err = resolver.Fetch(ctx, source, recFile); err != nil {
		return "", "", "", err
	}
	if charsPath, err = resolver.Fetch(ctx, source, charsFile); err != nil {
		return "", "", "", err
	}
	return detPath, recPath, charsPath, nil
}

// loadCharset reads a one-character-per-line dictionary. Line i maps to CTC
// class i+1; class 0 is the blank.
func loadCharset(path string) ([]rune, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading charset %s", path)
	}
	var charset []rune
	line := []rune{}
	for _, r := range string(data) {
		if r == '\n' {
			if len(line) > 0 {
				charset = append(charset, line[0])
			} else {
				charset = append(charset, ' ')
			}
			line = line[:0]
			continue
		}
		if r != '\r' {
			line = append(line, r)
		}
	}
	if len(line) > 0 {
		charset = append(charset, line[0])
	}
	if len(charset) == 0 {
		return nil, errors.Wrapf(model.ErrConfiguration, "empty charset %s", path)
	}
	return charset, nil
}

// Predict detects and recognizes all text in the frame. Thresholds pass
// through to the engine: TextThreshold (default 0.7), LowText (0.4),
// LinkThreshold (0.4), WidthThs and HeightThs (0.5), MinSize (10 px).
func (o *Reader) Predict(ctx context.Context, frame *images.Frame, opts model.PredictOptions) (*model.Result, error) {
	o.mu.RLock()
	det := o.det
	rec := o.rec
	charset := o.charset
	languages := o.languages
	loaded := o.loaded
	o.mu.RUnlock()

	if !loaded {
		return nil, errors.Wrap(model.ErrNotLoaded, "easyocr")
	}
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return nil, errors.Wrap(model.ErrBadInput, "empty frame")
	}

	p := detectParams(opts)

	resized, err := images.ResizeTo(frame, detSize, detSize)
	if err != nil {
		return nil, errors.Wrap(model.ErrBadInput, err.Error())
	}
	input := make([]float32, 3*detSize*detSize)
	if err := images.ToCHW(resized, input); err != nil {
		return nil, errors.Wrap(model.ErrBadInput, err.Error())
	}

	maps, err := det.run(input)
	if err != nil {
		return nil, errors.Wrap(err, "easyocr detection")
	}

	regions := decodeRegions(maps, p, frame.Width, frame.Height)

	var texts []results.Text
	for _, quad := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, confidence, err := o.recognize(rec, charset, frame, quad)
		if err != nil {
			glog.Warningf("easyocr: region skipped: %v", err)
			continue
		}
		if text == "" {
			continue
		}
		texts = append(texts, results.NewText(text, confidence, quad, frame.Width, frame.Height))
	}

	if opts.Paragraph {
		texts = mergeParagraphs(texts, p.widthThs, p.heightThs, frame.Width, frame.Height)
	}

	return &model.Result{
		TaskType:  model.TaskText,
		ModelType: model.NameEasyOCR,
		Texts:     texts,
		NumTexts:  len(texts),
		Languages: languages,
	}, nil
}

// Info returns a snapshot of the adapter state.
func (o *Reader) Info() model.Info {
	o.mu.RLock()
	defer o.mu.RUnlock()

	info := model.Info{
		ModelType: model.NameEasyOCR,
		Task:      model.TypeOCR,
		Framework: "onnxruntime",
		Device:    o.device,
		IsLoaded:  o.loaded,
		Source:    o.source,
	}
	if o.loaded {
		info.Languages = append([]string(nil), o.languages...)
	}
	return info
}

// Loaded reports whether the adapter is ready for Predict.
func (o *Reader) Loaded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loaded
}

// Unload releases both backing sessions.
func (o *Reader) Unload() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unloadLocked()
	glog.Infof("easyocr: unloaded %s", o.source)
}

func (o *Reader) unloadLocked() {
	if o.det != nil {
		o.det.destroy()
		o.det = nil
	}
	if o.rec != nil {
		o.rec.destroy()
		o.rec = nil
	}
	o.charset = nil
	o.loaded = false
}
