// Package vocabfile reads and writes the on-disk form of a BPE model: a
// JSON object mapping token to id, and a merges file with one
// space-separated pair per line in rank order.
package vocabfile

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/example/go-bpetok/internal/bpe"
)

// ErrEmptyPath is returned when a vocab or merges path is empty.
var ErrEmptyPath = errors.New("vocab and merges paths must not be empty")

// LineError reports a merges line that is not exactly two fields.
type LineError struct {
	Line   int
	Fields int
}

func (e *LineError) Error() string {
	return fmt.Sprintf("merges line %d: want 2 fields, got %d", e.Line, e.Fields)
}

// ReadVocab decodes a JSON object of token to id.
func ReadVocab(r io.Reader) (map[string]uint32, error) {
	var vocab map[string]uint32
	if err := json.NewDecoder(r).Decode(&vocab); err != nil {
		return nil, fmt.Errorf("decode vocab: %w", err)
	}

	if vocab == nil {
		vocab = map[string]uint32{}
	}

	return vocab, nil
}

// ReadMerges parses merge rules, one "left right" pair per line. Lines are
// trimmed; blank lines and lines starting with # are skipped.
func ReadMerges(r io.Reader) ([]bpe.Merge, error) {
	var merges []bpe.Merge

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &LineError{Line: n, Fields: len(fields)}
		}

		merges = append(merges, bpe.Merge{Left: fields[0], Right: fields[1]})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}

	return merges, nil
}

// LoadFiles reads the vocab and merges files.
func LoadFiles(vocabPath, mergesPath string) (map[string]uint32, []bpe.Merge, error) {
	if vocabPath == "" || mergesPath == "" {
		return nil, nil, ErrEmptyPath
	}

	vocab, err := ReadVocabFile(vocabPath)
	if err != nil {
		return nil, nil, err
	}

	merges, err := ReadMergesFile(mergesPath)
	if err != nil {
		return nil, nil, err
	}

	return vocab, merges, nil
}

// ReadVocabFile reads the vocab JSON file at path.
func ReadVocabFile(path string) (map[string]uint32, error) {
	return readFile(path, ReadVocab)
}

// ReadMergesFile reads the merges file at path.
func ReadMergesFile(path string) ([]bpe.Merge, error) {
	return readFile(path, ReadMerges)
}

// Load reads both files and builds a model.
func Load(vocabPath, mergesPath string, cfg bpe.Config, opts ...bpe.Option) (*bpe.Model, error) {
	vocab, merges, err := LoadFiles(vocabPath, mergesPath)
	if err != nil {
		return nil, err
	}

	m, err := bpe.New(vocab, merges, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build model from %q and %q: %w", vocabPath, mergesPath, err)
	}

	return m, nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T

	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}

	return v, nil
}

// ---------------------------------------------------------------------------
// Writers
// ---------------------------------------------------------------------------

// WriteVocab writes vocab as indented JSON with keys ordered by id.
func WriteVocab(w io.Writer, vocab map[string]uint32) error {
	tokens := make([]string, 0, len(vocab))
	for t := range vocab {
		tokens = append(tokens, t)
	}

	slices.SortFunc(tokens, func(a, b string) int { return cmp.Compare(vocab[a], vocab[b]) })

	bw := bufio.NewWriter(w)
	bw.WriteString("{\n")

	var key bytes.Buffer

	enc := json.NewEncoder(&key)
	enc.SetEscapeHTML(false)

	for i, t := range tokens {
		key.Reset()
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode token %q: %w", t, err)
		}

		sep := ","
		if i == len(tokens)-1 {
			sep = ""
		}

		fmt.Fprintf(bw, "  %s: %d%s\n", bytes.TrimSpace(key.Bytes()), vocab[t], sep)
	}

	bw.WriteString("}\n")

	return bw.Flush()
}

// WriteMerges writes one "left right" line per merge.
func WriteMerges(w io.Writer, merges []bpe.Merge) error {
	bw := bufio.NewWriter(w)
	for _, m := range merges {
		fmt.Fprintf(bw, "%s %s\n", m.Left, m.Right)
	}

	return bw.Flush()
}
