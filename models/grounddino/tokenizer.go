package grounddino

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
	padToken = "[PAD]"
	unkToken = "[UNK]"
)

// tokenizer is a WordPiece tokenizer over the BERT vocab.txt shipped with
// the model. It covers exactly what the text branch needs: lowercase,
// punctuation-split basic tokenization, then greedy longest-match subwords.
type tokenizer struct {
	vocab map[string]int64
}

func sidecarVocabPath(modelPath string) string {
	return filepath.Join(filepath.Dir(modelPath), vocabFile)
}

// loadTokenizer reads a one-token-per-line vocab file; the line number is
// the token id.
func loadTokenizer(vocabPath string) (*tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening vocab %s", vocabPath)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r\n")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading vocab %s", vocabPath)
	}

	for _, special := range []string{clsToken, sepToken, padToken, unkToken} {
		if _, ok := vocab[special]; !ok {
			return nil, errors.Errorf("vocab %s is missing %s", vocabPath, special)
		}
	}
	return &tokenizer{vocab: vocab}, nil
}

// encoding is one tokenized prompt padded to maxSeqLen. spans[i] lists the
// token positions belonging to phrase i, which is what ties a detection
// query's per-token logits back to a phrase.
type encoding struct {
	ids     []int64
	mask    []int64
	typeIDs []int64
	spans   [][]int
}

// encodePrompt lays out [CLS] phrase "." phrase "." ... [SEP] and records
// the token span of each phrase.
func (t *tokenizer) encodePrompt(phrases []string) (*encoding, error) {
	enc := &encoding{
		ids:     make([]int64, maxSeqLen),
		mask:    make([]int64, maxSeqLen),
		typeIDs: make([]int64, maxSeqLen),
		spans:   make([][]int, len(phrases)),
	}
	for i := range enc.ids {
		enc.ids[i] = t.vocab[padToken]
	}

	pos := 0
	emit := func(id int64) error {
		// Reserve the final slot for [SEP].
		if pos >= maxSeqLen-1 {
			return errors.Errorf("prompt exceeds %d tokens", maxSeqLen)
		}
		enc.ids[pos] = id
		enc.mask[pos] = 1
		pos++
		return nil
	}

	if err := emit(t.vocab[clsToken]); err != nil {
		return nil, err
	}
	for i, phrase := range phrases {
		for _, word := range basicTokenize(phrase) {
			for _, id := range t.wordPiece(word) {
				enc.spans[i] = append(enc.spans[i], pos)
				if err := emit(id); err != nil {
					return nil, err
				}
			}
		}
		if err := emit(t.tokenID(".")); err != nil {
			return nil, err
		}
	}
	enc.ids[pos] = t.vocab[sepToken]
	enc.mask[pos] = 1
	return enc, nil
}

func (t *tokenizer) tokenID(token string) int64 {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return t.vocab[unkToken]
}

// wordPiece splits one lowercase word into greedy longest-match subwords.
func (t *tokenizer) wordPiece(word string) []int64 {
	var ids []int64
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				ids = append(ids, id)
				found = true
				break
			}
			end--
		}
		if !found {
			return []int64{t.vocab[unkToken]}
		}
		start = end
	}
	return ids
}

// basicTokenize lowercases and splits on whitespace, isolating punctuation
// into its own tokens.
func basicTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		case isPunct(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func isPunct(r rune) bool {
	return strings.ContainsRune(`!"#$%&'()*+,-./:;<=>?@[\]^_`+"`"+`{|}~`, r)
}
