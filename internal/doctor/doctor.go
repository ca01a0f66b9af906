// Package doctor provides preflight checks for a bpetok model setup.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/text"
	"github.com/example/go-bpetok/internal/vocabfile"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VocabFunc loads a vocabulary from path.
type VocabFunc func(path string) (map[string]uint32, error)

// MergesFunc loads merge rules from path.
type MergesFunc func(path string) ([]bpe.Merge, error)

// Config holds the model settings under test and injectable loaders.
type Config struct {
	VocabPath  string
	MergesPath string
	// Model is the configuration the model is built with.
	Model bpe.Config
	// Sample, when non-empty, is encoded and decoded to check the round trip.
	Sample string
	// Splitter splits Sample into words. Nil means whitespace splitting.
	Splitter text.Splitter
	// ByteLevel maps Sample's words to the byte-level alphabet.
	ByteLevel bool

	// LoadVocab defaults to vocabfile.ReadVocabFile.
	LoadVocab VocabFunc
	// LoadMerges defaults to vocabfile.ReadMergesFile.
	LoadMerges MergesFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(w io.Writer, check string, err error) {
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", check, err))
	fmt.Fprintf(w, "%s %s: %v\n", FailMark, check, err)
}

// Run executes all checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark. Checks that depend
// on a failed check are not run.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	loadVocab := cfg.LoadVocab
	if loadVocab == nil {
		loadVocab = vocabfile.ReadVocabFile
	}

	loadMerges := cfg.LoadMerges
	if loadMerges == nil {
		loadMerges = vocabfile.ReadMergesFile
	}

	// ---- vocab file -------------------------------------------------------
	vocab, err := loadVocab(cfg.VocabPath)
	if err != nil {
		res.fail(w, "vocab file", err)
	} else {
		fmt.Fprintf(w, "%s vocab file: %s (%d tokens)\n", PassMark, cfg.VocabPath, len(vocab))
	}

	// ---- merges file ------------------------------------------------------
	merges, mergesErr := loadMerges(cfg.MergesPath)
	if mergesErr != nil {
		res.fail(w, "merges file", mergesErr)
	} else {
		fmt.Fprintf(w, "%s merges file: %s (%d rules)\n", PassMark, cfg.MergesPath, len(merges))
	}

	if err != nil || mergesErr != nil {
		return res
	}

	// ---- special tokens ---------------------------------------------------
	if unk := cfg.Model.UnkToken; unk != "" {
		if _, ok := vocab[unk]; ok {
			fmt.Fprintf(w, "%s unk token: %q\n", PassMark, unk)
		} else {
			res.fail(w, "unk token", fmt.Errorf("%q is not in the vocabulary", unk))
		}
	}

	if cfg.Model.ByteFallback {
		n := byteCoverage(vocab, cfg.Model.ByteFallbackFormat)
		if n == 0 {
			res.fail(w, "byte fallback", errors.New("no byte tokens in the vocabulary"))
		} else {
			fmt.Fprintf(w, "%s byte fallback: %d/256 byte tokens\n", PassMark, n)
		}
	}

	// ---- model build ------------------------------------------------------
	model, err := bpe.New(vocab, merges, cfg.Model)
	if err != nil {
		res.fail(w, "model build", err)
		return res
	}

	fmt.Fprintf(w, "%s model build: ok\n", PassMark)

	// ---- sample round trip ------------------------------------------------
	if cfg.Sample == "" {
		return res
	}

	n, err := roundTrip(model, cfg.Splitter, cfg.ByteLevel, cfg.Sample)
	if err != nil {
		res.fail(w, "sample round trip", err)
	} else {
		fmt.Fprintf(w, "%s sample round trip: %d tokens\n", PassMark, n)
	}

	return res
}

// byteCoverage counts how many of the 256 byte tokens are in vocab.
func byteCoverage(vocab map[string]uint32, format string) int {
	if format == "" {
		format = bpe.DefaultByteFallbackFormat
	}

	n := 0
	for b := range 256 {
		if _, ok := vocab[fmt.Sprintf(format, byte(b))]; ok {
			n++
		}
	}

	return n
}

// roundTrip encodes sample and checks that decoding, with markers stripped,
// gives back the sample's words. Whitespace is not compared.
func roundTrip(model *bpe.Model, splitter text.Splitter, byteLevel bool, sample string) (int, error) {
	if splitter == nil {
		splitter = text.WhitespaceSplitter{}
	}

	words, err := splitter.Split(sample)
	if err != nil {
		return 0, err
	}

	texts := text.Texts(words)
	if byteLevel {
		for i, w := range texts {
			texts[i] = text.ByteLevel(w)
		}
	}

	ids, err := model.EncodeSequence(texts)
	if err != nil {
		return 0, err
	}

	decoded, err := model.Decode(ids)
	if err != nil {
		return 0, err
	}

	if byteLevel {
		decoded = text.ByteLevelDecode(decoded)
	}

	mc := model.Config()
	got := squash(text.StripMarkers(decoded, mc.ContinuingSubwordPrefix, mc.EndOfWordSuffix))

	want := squash(sample)
	if got != want {
		return 0, fmt.Errorf("decoded %q, want %q", got, want)
	}

	return len(ids), nil
}

func squash(s string) string { return strings.Join(strings.Fields(s), "") }
