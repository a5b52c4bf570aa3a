package embedding

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeVocab(t *testing.T, dir string, tokens ...string) string {
	t.Helper()
	path := filepath.Join(dir, "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(tokens, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	return path
}

func TestWordPieceEncode(t *testing.T) {
	dir := t.TempDir()
	// ids: [PAD]=0 [UNK]=1 [CLS]=2 [SEP]=3 ski=4 rack=5 ##s=6 ?=7
	writeVocab(t, dir, "[PAD]", "[UNK]", "[CLS]", "[SEP]", "ski", "rack", "##s", "?")

	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("LoadTokenizerFromDir: %v", err)
	}

	ids, attn := tok.Encode("Ski racks? zzz", 10)
	want := []int64{2, 4, 5, 6, 7, 1, 3, 0, 0, 0}
	if len(ids) != len(want) {
		t.Fatalf("ids len = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	for i, m := range attn {
		wantM := int64(0)
		if i < 7 {
			wantM = 1
		}
		if m != wantM {
			t.Fatalf("attn[%d] = %d, want %d", i, m, wantM)
		}
	}
}

func TestWordPieceEncodeTruncates(t *testing.T) {
	dir := t.TempDir()
	writeVocab(t, dir, "[PAD]", "[UNK]", "[CLS]", "[SEP]", "ski")

	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("LoadTokenizerFromDir: %v", err)
	}
	ids, attn := tok.Encode("ski ski ski ski ski ski", 4)
	if len(ids) != 4 || len(attn) != 4 {
		t.Fatalf("expected fixed length 4, got %d/%d", len(ids), len(attn))
	}
	if ids[0] != 2 || ids[3] != 3 {
		t.Fatalf("expected CLS...SEP framing, got %v", ids)
	}
}

func TestVocabIDsFollowLineNumbers(t *testing.T) {
	ids, err := readVocab(strings.NewReader("[PAD]\n[UNK]\n\n[CLS]\nski\nski\nrack\n"))
	if err != nil {
		t.Fatalf("readVocab: %v", err)
	}
	want := map[string]int64{"[PAD]": 0, "[UNK]": 1, "[CLS]": 3, "ski": 5, "rack": 6}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for tok, id := range want {
		if ids[tok] != id {
			t.Fatalf("id of %q = %d, want %d (all: %v)", tok, ids[tok], id, ids)
		}
	}
}

func TestTokenizerInSubdir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "tokenizer")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeVocab(t, sub, "[PAD]", "[UNK]", "[CLS]", "[SEP]")
	if _, err := LoadTokenizerFromDir(dir); err != nil {
		t.Fatalf("expected tokenizer/vocab.txt to be found: %v", err)
	}
}

func TestTokenizerMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadTokenizerFromDir(dir); err == nil {
		t.Fatalf("expected error for missing vocab")
	}
	path := filepath.Join(dir, "vocab.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadWordPieceTokenizer(path); err == nil {
		t.Fatalf("expected error for empty vocab")
	}
}

func TestLoadMissingModel(t *testing.T) {
	if _, err := Load(Options{}); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	if _, err := Load(Options{Dir: t.TempDir()}); err == nil || !strings.Contains(err.Error(), "model file missing") {
		t.Fatalf("expected missing model error, got %v", err)
	}
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		3, 0,
		0, 4,
		100, 100, // masked
	}
	got := MeanPool(hidden, []int64{1, 1, 0}, 2)
	// mean = (1.5, 2) -> normalized (0.6, 0.8)
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Fatalf("MeanPool = %v", got)
	}

	zero := MeanPool(hidden, []int64{0, 0, 0}, 2)
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("fully masked input should pool to zero, got %v", zero)
	}
}

func TestNilEmbedderUnavailable(t *testing.T) {
	var e *OnnxEmbedder
	if e.Available() {
		t.Fatalf("nil embedder must be unavailable")
	}
	if _, err := e.Embed(context.Background(), "rack"); err == nil {
		t.Fatalf("expected error from nil embedder")
	}
	e.Close()
}

func TestResolveSharedLibraryPathEnv(t *testing.T) {
	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "/custom/libonnxruntime.so")
	if got := resolveSharedLibraryPath(t.TempDir()); got != "/custom/libonnxruntime.so" {
		t.Fatalf("resolveSharedLibraryPath = %q", got)
	}
}
