package grounddino

import (
	"strings"

	"github.com/chewxy/math32"

	"github.com/autolabel-ai/go-autolabel/results"
)

// ParsePrompt splits a period-delimited prompt into its phrases. Phrases
// are trimmed and empties dropped, so "person. car." and "person.car" parse
// identically. The phrase index is the transient class ID for the call.
func ParsePrompt(prompt string) []string {
	var phrases []string
	for _, part := range strings.Split(prompt, ".") {
		if phrase := strings.TrimSpace(part); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

// MatchPhrase maps a predicted label back to its prompt phrase index.
// Matching is case-insensitive over trimmed text; -1 means the label
// corresponds to no phrase and the caller keeps the raw label.
func MatchPhrase(label string, phrases []string) int {
	want := strings.ToLower(strings.TrimSpace(label))
	for i, phrase := range phrases {
		if strings.ToLower(strings.TrimSpace(phrase)) == want {
			return i
		}
	}
	return -1
}

// decodeQueries walks all detection queries, scores each against every
// prompt phrase over that phrase's token span, and keeps queries whose best
// box score clears boxThreshold. The box score is the max token sigmoid
// across the whole prompt; the phrase is the best span whose own max clears
// textThreshold.
func decodeQueries(logits, predBoxes []float32, enc *encoding, phrases []string, boxThreshold, textThreshold, xScale, yScale float32, imgWidth, imgHeight int) []results.Detection {
	var boxes []results.Detection
	for q := 0; q < numQueries; q++ {
		row := logits[q*maxSeqLen : (q+1)*maxSeqLen]

		score := float32(0)
		for pos, active := range enc.mask {
			if active == 1 {
				if s := sigmoid(row[pos]); s > score {
					score = s
				}
			}
		}
		if score < boxThreshold {
			continue
		}

		classID := -1
		label := ""
		best := float32(0)
		for i, span := range enc.spans {
			phraseScore := float32(0)
			for _, pos := range span {
				if s := sigmoid(row[pos]); s > phraseScore {
					phraseScore = s
				}
			}
			if phraseScore >= textThreshold && phraseScore > best {
				best = phraseScore
				label = phrases[i]
			}
		}
		if label != "" {
			classID = MatchPhrase(label, phrases)
		}

		cx := predBoxes[q*4+0] * inputSize * xScale
		cy := predBoxes[q*4+1] * inputSize * yScale
		w := predBoxes[q*4+2] * inputSize * xScale
		h := predBoxes[q*4+3] * inputSize * yScale

		box := results.Box{cx - w/2, cy - h/2, w, h}
		norm, _ := results.Normalize(box, imgWidth, imgHeight)
		boxes = append(boxes, results.Detection{
			ClassID:          classID,
			ClassName:        label,
			Confidence:       score,
			BBox:             box,
			NormalizedCoords: norm,
		})
	}
	return boxes
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}
