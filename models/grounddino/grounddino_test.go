package grounddino

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

func testVocab() *tokenizer {
	words := []string{
		padToken, unkToken, clsToken, sepToken, ".",
		"person", "car", "fire", "hyd", "##rant",
	}
	vocab := make(map[string]int64, len(words))
	for i, w := range words {
		vocab[w] = int64(i)
	}
	return &tokenizer{vocab: vocab}
}

type fakeRunner struct {
	logits []float32
	boxes  []float32
	err    error
}

func (f *fakeRunner) run(pixels []float32, ids, mask, typeIDs []int64) ([]float32, []float32, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.logits, f.boxes, nil
}

func (f *fakeRunner) destroy() {}

func loadedDetector(r runner) *Detector {
	d := New()
	d.runner = r
	d.tokenizer = testVocab()
	d.loaded = true
	d.source = "test"
	return d
}

func testFrame(w, h int) *images.Frame {
	return images.FromImage(image.NewRGBA(image.Rect(0, 0, w, h)))
}

func TestParsePrompt(t *testing.T) {
	assert.Equal(t, []string{"person", "car"}, ParsePrompt("person. car."))
	assert.Equal(t, []string{"person", "car"}, ParsePrompt("person.car"))
	assert.Equal(t, []string{"fire hydrant"}, ParsePrompt("  fire hydrant .  "))
	assert.Empty(t, ParsePrompt(""))
	assert.Empty(t, ParsePrompt(" . . "))
}

func TestMatchPhrase(t *testing.T) {
	phrases := []string{"person", "Fire Hydrant"}
	assert.Equal(t, 0, MatchPhrase("person", phrases))
	assert.Equal(t, 0, MatchPhrase(" PERSON ", phrases))
	assert.Equal(t, 1, MatchPhrase("fire hydrant", phrases))
	assert.Equal(t, -1, MatchPhrase("dog", phrases))
}

func TestEncodePromptLayout(t *testing.T) {
	tok := testVocab()
	enc, err := tok.encodePrompt([]string{"person", "car"})
	require.NoError(t, err)

	// [CLS] person . car . [SEP]
	want := []int64{
		tok.vocab[clsToken], tok.vocab["person"], tok.vocab["."],
		tok.vocab["car"], tok.vocab["."], tok.vocab[sepToken],
	}
	assert.Equal(t, want, enc.ids[:6])
	assert.Equal(t, tok.vocab[padToken], enc.ids[6])
	for i := 0; i < 6; i++ {
		assert.Equal(t, int64(1), enc.mask[i])
	}
	assert.Equal(t, int64(0), enc.mask[6])

	assert.Equal(t, [][]int{{1}, {3}}, enc.spans)
}

func TestEncodePromptWordPiece(t *testing.T) {
	tok := testVocab()
	enc, err := tok.encodePrompt([]string{"fire hydrant"})
	require.NoError(t, err)

	// "hydrant" splits into hyd + ##rant; the whole phrase is one span.
	want := []int64{
		tok.vocab[clsToken], tok.vocab["fire"], tok.vocab["hyd"],
		tok.vocab["##rant"], tok.vocab["."], tok.vocab[sepToken],
	}
	assert.Equal(t, want, enc.ids[:6])
	assert.Equal(t, [][]int{{1, 2, 3}}, enc.spans)
}

func TestEncodePromptUnknownWord(t *testing.T) {
	tok := testVocab()
	enc, err := tok.encodePrompt([]string{"zeppelin"})
	require.NoError(t, err)
	assert.Equal(t, tok.vocab[unkToken], enc.ids[1])
}

// plantLogit produces a full logits/pred_boxes pair with one live query.
func plantLogit(positions []int, logit float32, box [4]float32) ([]float32, []float32) {
	logits := make([]float32, numQueries*maxSeqLen)
	for i := range logits {
		logits[i] = -20 // sigmoid ~ 0
	}
	for _, pos := range positions {
		logits[pos] = logit
	}
	boxes := make([]float32, numQueries*4)
	copy(boxes[:4], box[:])
	return logits, boxes
}

func TestPredictMatchesPhrase(t *testing.T) {
	// Query 0 fires on token position 3 ("car", phrase index 1). The frame
	// is 1600x800, so the 800px cap halves both axes and the content fills
	// the top half of the square canvas: the canvas-normalized box
	// (0.5, 0.25, 0.2, 0.1) means a 320x160 box centered at (800, 400).
	logits, boxes := plantLogit([]int{3}, 3.0, [4]float32{0.5, 0.25, 0.2, 0.1})
	d := loadedDetector(&fakeRunner{logits: logits, boxes: boxes})

	res, err := d.Predict(context.Background(), testFrame(1600, 800), model.PredictOptions{
		TextPrompt: "person. car.",
	})
	require.NoError(t, err)

	assert.Equal(t, "person. car.", res.TextPrompt)
	assert.Equal(t, []string{"person", "car"}, res.PromptClasses)
	require.Equal(t, 1, res.NumDetections)

	det := res.Boxes[0]
	assert.Equal(t, 1, det.ClassID)
	assert.Equal(t, "car", det.ClassName)
	// Normalized center box scales back per axis to the original frame.
	assert.InDelta(t, 800-160, det.BBox.X(), 1e-2)
	assert.InDelta(t, 400-80, det.BBox.Y(), 1e-2)
	assert.InDelta(t, 320, det.BBox.W(), 1e-2)
	assert.InDelta(t, 160, det.BBox.H(), 1e-2)
}

func TestPredictBoxThreshold(t *testing.T) {
	// sigmoid(-1) ~ 0.27: above the text threshold, below the box threshold.
	logits, boxes := plantLogit([]int{1}, -1.0, [4]float32{0.5, 0.5, 0.2, 0.2})
	d := loadedDetector(&fakeRunner{logits: logits, boxes: boxes})

	res, err := d.Predict(context.Background(), testFrame(800, 800), model.PredictOptions{
		TextPrompt: "person.",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.NumDetections)

	res, err = d.Predict(context.Background(), testFrame(800, 800), model.PredictOptions{
		TextPrompt:   "person.",
		BoxThreshold: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NumDetections)
}

func TestPadCHWPlacesContentTopLeft(t *testing.T) {
	width, height := 2, 1
	content := []float32{1, 2, 3, 4, 5, 6} // two pixels per channel
	dst := make([]float32, 3*inputSize*inputSize)
	padCHW(content, width, height, dst)

	plane := inputSize * inputSize
	for c := 0; c < 3; c++ {
		assert.Equal(t, content[c*2], dst[c*plane])
		assert.Equal(t, content[c*2+1], dst[c*plane+1])
		// The rest of the plane stays zero.
		assert.Zero(t, dst[c*plane+2])
		assert.Zero(t, dst[c*plane+inputSize])
	}
}

func TestPredictRequiresPrompt(t *testing.T) {
	d := loadedDetector(&fakeRunner{})
	_, err := d.Predict(context.Background(), testFrame(64, 64), model.PredictOptions{})
	assert.True(t, errors.Is(err, model.ErrBadInput))

	_, err = d.Predict(context.Background(), testFrame(64, 64), model.PredictOptions{TextPrompt: " . "})
	assert.True(t, errors.Is(err, model.ErrBadInput))
}

func TestPredictNotLoaded(t *testing.T) {
	d := New()
	_, err := d.Predict(context.Background(), testFrame(64, 64), model.PredictOptions{TextPrompt: "person."})
	assert.True(t, errors.Is(err, model.ErrNotLoaded))
}

func TestPredictBatchPreservesOrder(t *testing.T) {
	logits, boxes := plantLogit([]int{1}, 3.0, [4]float32{0.5, 0.5, 0.2, 0.2})
	d := loadedDetector(&fakeRunner{logits: logits, boxes: boxes})

	frames := []*images.Frame{
		testFrame(320, 240),
		nil, // bad entry keeps its slot as an empty result
		testFrame(320, 240),
	}
	out, err := d.PredictBatch(context.Background(), frames, model.PredictOptions{
		TextPrompt: "person.",
		BatchSize:  2,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, 1, out[0].NumDetections)
	assert.Equal(t, 0, out[1].NumDetections)
	assert.Equal(t, []string{"person"}, out[1].PromptClasses)
	assert.Equal(t, 1, out[2].NumDetections)
}

func TestPredictBatchRequiresPrompt(t *testing.T) {
	d := loadedDetector(&fakeRunner{})
	_, err := d.PredictBatch(context.Background(), []*images.Frame{testFrame(64, 64)}, model.PredictOptions{})
	assert.True(t, errors.Is(err, model.ErrBadInput))
}

func TestInfoSnapshot(t *testing.T) {
	d := New()
	info := d.Info()
	assert.False(t, info.IsLoaded)
	assert.True(t, info.ZeroShot)
	assert.True(t, info.SupportsTextPrompt)
	assert.True(t, info.SupportsBatch)
}

func TestUnload(t *testing.T) {
	d := loadedDetector(&fakeRunner{})
	d.Unload()
	assert.False(t, d.Loaded())
	d.Unload()
}
