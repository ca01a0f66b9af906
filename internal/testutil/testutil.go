// Package testutil provides shared fixtures and skip helpers for tests.
//
// The fixture helpers write a small vocab/merges pair into a test temp dir.
// The skip helpers call t.Skipf with a clear reason when an optional
// real-world model is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    vocab, merges := testutil.RequireModelFiles(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/vocabfile"
)

// HelloVocab returns the vocabulary of the "hello" fixture model.
func HelloVocab() map[string]uint32 {
	return map[string]uint32{
		"h": 0, "e": 1, "l": 2, "o": 3,
		"he": 4, "ll": 5, "hell": 6, "hello": 7,
		"[UNK]": 8,
	}
}

// HelloMerges returns the merges of the "hello" fixture model in rank order.
func HelloMerges() []bpe.Merge {
	return []bpe.Merge{
		{Left: "h", Right: "e"},
		{Left: "l", Right: "l"},
		{Left: "he", Right: "ll"},
		{Left: "hell", Right: "o"},
	}
}

// HelloModel builds the "hello" fixture model with cfg.
func HelloModel(tb testing.TB, cfg bpe.Config) *bpe.Model {
	tb.Helper()

	m, err := bpe.New(HelloVocab(), HelloMerges(), cfg)
	if err != nil {
		tb.Fatalf("build hello model: %v", err)
	}

	return m
}

// WriteModelFiles writes vocab.json and merges.txt into a fresh temp dir and
// returns their paths.
func WriteModelFiles(tb testing.TB, vocab map[string]uint32, merges []bpe.Merge) (vocabPath, mergesPath string) {
	tb.Helper()

	dir := tb.TempDir()
	vocabPath = filepath.Join(dir, "vocab.json")
	mergesPath = filepath.Join(dir, "merges.txt")

	vf, err := os.Create(vocabPath)
	if err != nil {
		tb.Fatalf("create %s: %v", vocabPath, err)
	}
	defer vf.Close()

	if err := vocabfile.WriteVocab(vf, vocab); err != nil {
		tb.Fatalf("write vocab: %v", err)
	}

	mf, err := os.Create(mergesPath)
	if err != nil {
		tb.Fatalf("create %s: %v", mergesPath, err)
	}
	defer mf.Close()

	if err := vocabfile.WriteMerges(mf, merges); err != nil {
		tb.Fatalf("write merges: %v", err)
	}

	return vocabPath, mergesPath
}

// WriteHelloFiles writes the "hello" fixture model to a temp dir.
func WriteHelloFiles(tb testing.TB) (vocabPath, mergesPath string) {
	tb.Helper()

	return WriteModelFiles(tb, HelloVocab(), HelloMerges())
}

// WriteFile writes content to name inside a fresh temp dir and returns the path.
func WriteFile(tb testing.TB, name, content string) string {
	tb.Helper()

	p := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		tb.Fatalf("write %s: %v", p, err)
	}

	return p
}

// RequireModelFiles skips the test unless BPETOK_TEST_VOCAB and
// BPETOK_TEST_MERGES point at an existing real-world model, e.g. the GPT-2
// vocab.json and merges.txt.
func RequireModelFiles(tb testing.TB) (vocabPath, mergesPath string) {
	tb.Helper()

	vocabPath = os.Getenv("BPETOK_TEST_VOCAB")
	mergesPath = os.Getenv("BPETOK_TEST_MERGES")

	if vocabPath == "" || mergesPath == "" {
		tb.Skipf("real model not configured; set BPETOK_TEST_VOCAB and BPETOK_TEST_MERGES")
		return "", ""
	}

	for _, p := range []string{vocabPath, mergesPath} {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("real model file not available at %q: %v", p, err)
			return "", ""
		}
	}

	return vocabPath, mergesPath
}
