package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer turns byte-level BPE token ids back into text.
type Tokenizer struct {
	tk        *tokenizer.Tokenizer
	vocabSize int
}

// LoadTokenizer reads the Hugging Face tokenizer.json in dir.
func LoadTokenizer(dir string) (*Tokenizer, error) {
	path := filepath.Join(dir, "tokenizer.json")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read tokenizer.json: %w", err)
	}
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}
	size := tk.GetVocabSize(true)
	if size == 0 {
		return nil, errors.New("tokenizer.json has an empty vocabulary")
	}
	return &Tokenizer{tk: tk, vocabSize: size}, nil
}

// Decode detokenizes one sequence with special tokens skipped.
func (t *Tokenizer) Decode(ids []int64) (string, error) {
	seq := make([]int, len(ids))
	for i, id := range ids {
		if id < 0 || id >= int64(t.vocabSize) {
			return "", fmt.Errorf("token id %d is not in the vocabulary", id)
		}
		seq[i] = int(id)
	}
	text := t.tk.Decode(seq, true)
	return cleanUpTokenizationSpaces(strings.ToValidUTF8(text, "�")), nil
}

// BatchDecode decodes every sequence in order.
func (t *Tokenizer) BatchDecode(seqs [][]int64) ([]string, error) {
	out := make([]string, 0, len(seqs))
	for i, ids := range seqs {
		text, err := t.Decode(ids)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out = append(out, text)
	}
	return out, nil
}

// spaceCleaner undoes the spaces the tokenizer puts before punctuation and
// English contractions.
var spaceCleaner = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

func cleanUpTokenizationSpaces(s string) string {
	return spaceCleaner.Replace(s)
}
