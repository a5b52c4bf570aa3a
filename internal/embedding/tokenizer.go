package embedding

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/slopescout/brain/internal/textnorm"
)

// Tokenizer turns text into fixed-length model inputs: token ids and the
// matching attention mask.
type Tokenizer interface {
	Encode(text string, seqLen int) (ids, mask []int64)
}

const subwordPrefix = "##"

// WordPieceTokenizer is an uncased BERT WordPiece tokenizer, enough for
// MiniLM-style sentence encoders.
type WordPieceTokenizer struct {
	ids                map[string]int64
	cls, sep, pad, unk int64
}

// LoadWordPieceTokenizer reads a vocab.txt with one token per line; the
// zero-based line number is the token id. Blank lines hold their id, and a
// repeated token takes the id of its last line.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	ids, err := readVocab(f)
	if err != nil {
		return nil, fmt.Errorf("vocab %s: %w", path, err)
	}
	return &WordPieceTokenizer{
		ids: ids,
		cls: ids["[CLS]"],
		sep: ids["[SEP]"],
		pad: ids["[PAD]"],
		unk: ids["[UNK]"],
	}, nil
}

func readVocab(r io.Reader) (map[string]int64, error) {
	ids := make(map[string]int64)
	sc := bufio.NewScanner(r)
	for line := int64(0); sc.Scan(); line++ {
		if tok := strings.TrimSpace(sc.Text()); tok != "" {
			ids[tok] = line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	return ids, nil
}

// LoadTokenizerFromDir looks for vocab.txt in dir, then in dir/tokenizer.
func LoadTokenizerFromDir(dir string) (*WordPieceTokenizer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("model dir is empty")
	}
	for _, p := range []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	} {
		if _, err := os.Stat(p); err == nil {
			return LoadWordPieceTokenizer(p)
		}
	}
	return nil, fmt.Errorf("no vocab.txt under %s", dir)
}

// Encode frames the text as [CLS] pieces... [SEP], truncating the pieces so
// the result fits seqLen, and pads to exactly seqLen.
func (t *WordPieceTokenizer) Encode(text string, seqLen int) (ids, mask []int64) {
	if seqLen <= 0 {
		return nil, nil
	}
	room := max(seqLen-2, 0)

	pieces := make([]int64, 0, room)
	for _, w := range basicSplit(textnorm.Fold(text)) {
		if len(pieces) >= room {
			break
		}
		pieces = append(pieces, t.pieces(w)...)
	}
	pieces = pieces[:min(len(pieces), room)]

	ids = make([]int64, seqLen)
	mask = make([]int64, seqLen)
	n := 0
	put := func(id int64) {
		if n < seqLen {
			ids[n], mask[n] = id, 1
			n++
		}
	}
	put(t.cls)
	for _, id := range pieces {
		put(id)
	}
	put(t.sep)
	for i := n; i < seqLen; i++ {
		ids[i] = t.pad
	}
	return ids, mask
}

// pieces splits one word greedily, longest prefix first. A word with any
// unmatched remainder maps to [UNK] as a whole.
func (t *WordPieceTokenizer) pieces(word string) []int64 {
	if id, ok := t.ids[word]; ok {
		return []int64{id}
	}
	var out []int64
	rest, prefix := word, ""
	for rest != "" {
		cut := len(rest)
		for ; cut > 0; cut-- {
			if id, ok := t.ids[prefix+rest[:cut]]; ok {
				out = append(out, id)
				break
			}
		}
		if cut == 0 {
			return []int64{t.unk}
		}
		rest, prefix = rest[cut:], subwordPrefix
	}
	return out
}

// basicSplit breaks on whitespace and emits each punctuation or symbol rune
// as its own word.
func basicSplit(text string) []string {
	return strings.FieldsFunc(isolatePunct(text), unicode.IsSpace)
}

func isolatePunct(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
