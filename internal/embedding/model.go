// Package embedding provides the ONNX Runtime sentence encoder that backs
// the similarity scorer when a model bundle is configured.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultSeqLen     = 128
	DefaultDims       = 384
	DefaultModelFile  = "model.onnx"
	DefaultOutputName = "last_hidden_state"
)

// Options locates and shapes an encoder bundle.
type Options struct {
	// Dir holds model.onnx and vocab.txt (or tokenizer/vocab.txt).
	Dir       string
	ModelFile string
	SeqLen    int
	Dims      int
	// TokenTypeIDs adds the token_type_ids input BERT-family exports expect.
	TokenTypeIDs bool
	OutputName   string
}

// OnnxEmbedder wraps one ONNX session and its tokenizer. Runs are
// serialized; the session tensors are reused between calls.
type OnnxEmbedder struct {
	session   *ort.AdvancedSession
	tokenizer Tokenizer
	seqLen    int
	dims      int
	name      string

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

// Load initializes the ONNX environment, the session and the tokenizer.
func Load(opts Options) (*OnnxEmbedder, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("embedding model dir is empty")
	}
	if opts.SeqLen <= 0 {
		opts.SeqLen = DefaultSeqLen
	}
	if opts.Dims <= 0 {
		opts.Dims = DefaultDims
	}
	if opts.ModelFile == "" {
		opts.ModelFile = DefaultModelFile
	}
	if opts.OutputName == "" {
		opts.OutputName = DefaultOutputName
	}

	modelPath := filepath.Join(opts.Dir, opts.ModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	tokenizer, err := LoadTokenizerFromDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	libPath := resolveSharedLibraryPath(opts.Dir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inputShape := ort.NewShape(1, int64(opts.SeqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.SeqLen), int64(opts.Dims)))
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask"}
	inputs := []ort.Value{inputIDs, attnMask}
	var tokenTypes *ort.Tensor[int64]
	if opts.TokenTypeIDs {
		tokenTypes, err = ort.NewEmptyTensor[int64](inputShape)
		if err != nil {
			inputIDs.Destroy()
			attnMask.Destroy()
			output.Destroy()
			return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
		}
		inputNames = append(inputNames, "token_type_ids")
		inputs = append(inputs, tokenTypes)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		inputNames,
		[]string{opts.OutputName},
		inputs,
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		output.Destroy()
		if tokenTypes != nil {
			tokenTypes.Destroy()
		}
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Printf("embedding: loaded %s seq_len=%d dims=%d", filepath.Base(modelPath), opts.SeqLen, opts.Dims)
	return &OnnxEmbedder{
		session:       session,
		tokenizer:     tokenizer,
		seqLen:        opts.SeqLen,
		dims:          opts.Dims,
		name:          "onnx:" + filepath.Base(opts.Dir),
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		tokenTypeIDs:  tokenTypes,
		output:        output,
	}, nil
}

// Name identifies the backend in logs and /healthz.
func (e *OnnxEmbedder) Name() string {
	if e == nil {
		return "onnx"
	}
	return e.name
}

// Available reports whether the session is loaded.
func (e *OnnxEmbedder) Available() bool {
	return e != nil && e.session != nil
}

// Embed returns the mean-pooled, L2-normalized sentence embedding of text.
// ONNX runs cannot be interrupted; ctx is checked before the run.
func (e *OnnxEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.Available() || e.tokenizer == nil {
		return nil, errors.New("embedding model not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, attn := e.tokenizer.Encode(text, e.seqLen)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), attn)
	if e.tokenTypeIDs != nil {
		tt := e.tokenTypeIDs.GetData()
		for i := range tt {
			tt[i] = 0
		}
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return MeanPool(e.output.GetData(), attn, e.dims), nil
}

// Close releases the session and tensors.
func (e *OnnxEmbedder) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDs, e.attentionMask, e.tokenTypeIDs} {
		if t != nil {
			t.Destroy()
		}
	}
	if e.output != nil {
		e.output.Destroy()
	}
}

// MeanPool averages the hidden states of attended tokens and L2-normalizes
// the result. hidden is laid out [seqLen][dims].
func MeanPool(hidden []float32, attn []int64, dims int) []float32 {
	out := make([]float32, dims)
	if dims <= 0 {
		return out
	}
	var count float64
	sums := make([]float64, dims)
	for i, m := range attn {
		if m == 0 {
			continue
		}
		off := i * dims
		if off+dims > len(hidden) {
			break
		}
		for d := 0; d < dims; d++ {
			sums[d] += float64(hidden[off+d])
		}
		count++
	}
	if count == 0 {
		return out
	}
	var norm float64
	for d := range sums {
		sums[d] /= count
		norm += sums[d] * sums[d]
	}
	norm = math.Sqrt(norm)
	for d := range sums {
		if norm > 0 {
			out[d] = float32(sums[d] / norm)
		}
	}
	return out
}

// libraryNames are the onnxruntime shared library file names per platform.
var libraryNames = map[string][]string{
	"darwin":  {"libonnxruntime.dylib", "onnxruntime.dylib"},
	"windows": {"onnxruntime.dll"},
}

// resolveSharedLibraryPath returns ONNXRUNTIME_SHARED_LIBRARY_PATH when set,
// otherwise the first runtime library found next to the model or in the
// usual system lib directories. It returns "" when nothing is found.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names, ok := libraryNames[runtime.GOOS]
	if !ok {
		names = []string{"libonnxruntime.so", "onnxruntime.so"}
	}
	for _, dir := range []string{modelDir, filepath.Join(modelDir, "lib"), "/opt/homebrew/lib", "/usr/local/lib", "/usr/lib"} {
		for _, name := range names {
			if p := filepath.Join(dir, name); fileExists(p) {
				return p
			}
		}
	}
	return ""
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
