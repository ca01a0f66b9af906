package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/example/go-bpetok/internal/testutil"
	"github.com/example/go-bpetok/internal/vocabfile"
)

func TestVocab_Size(t *testing.T) {
	out, _, err := runCLI(t, nil, "vocab", "size")
	if err != nil {
		t.Fatalf("vocab size: %v", err)
	}

	if out != "9\n" {
		t.Fatalf("stdout = %q; want %q", out, "9\n")
	}
}

func TestVocab_Lookup(t *testing.T) {
	out, _, err := runCLI(t, nil, "vocab", "lookup", "hello", "h")
	if err != nil {
		t.Fatalf("vocab lookup: %v", err)
	}

	if out != "hello\t7\nh\t0\n" {
		t.Fatalf("stdout = %q", out)
	}

	if _, _, err := runCLI(t, nil, "vocab", "lookup", "xyz"); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestVocab_ID(t *testing.T) {
	out, _, err := runCLI(t, nil, "vocab", "id", "7", "8")
	if err != nil {
		t.Fatalf("vocab id: %v", err)
	}

	if out != "7\thello\n8\t[UNK]\n" {
		t.Fatalf("stdout = %q", out)
	}

	if _, _, err := runCLI(t, nil, "vocab", "id", "42"); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestVocab_ExportStdout(t *testing.T) {
	out, _, err := runCLI(t, nil, "vocab", "export")
	if err != nil {
		t.Fatalf("vocab export: %v", err)
	}

	got, err := vocabfile.ReadVocab(strings.NewReader(out))
	if err != nil {
		t.Fatalf("read exported vocab: %v", err)
	}

	if diff := cmp.Diff(testutil.HelloVocab(), got); diff != "" {
		t.Fatalf("vocab mismatch (-want +got):\n%s", diff)
	}
}

func TestVocab_ExportFilesWithAddedTokens(t *testing.T) {
	dir := t.TempDir()
	vocabOut := filepath.Join(dir, "vocab.json")
	mergesOut := filepath.Join(dir, "merges.txt")

	_, stderr, err := runCLI(t, nil, "vocab", "export",
		"--out", vocabOut, "--merges-out", mergesOut, "--add", "world,hello")
	if err != nil {
		t.Fatalf("vocab export: %v", err)
	}

	if !strings.Contains(stderr, "added 1 tokens") {
		t.Errorf("stderr = %q; want added count", stderr)
	}

	vocab, err := vocabfile.ReadVocabFile(vocabOut)
	if err != nil {
		t.Fatalf("read vocab: %v", err)
	}

	want := testutil.HelloVocab()
	want["world"] = 9

	if diff := cmp.Diff(want, vocab); diff != "" {
		t.Fatalf("vocab mismatch (-want +got):\n%s", diff)
	}

	merges, err := vocabfile.ReadMergesFile(mergesOut)
	if err != nil {
		t.Fatalf("read merges: %v", err)
	}

	if diff := cmp.Diff(testutil.HelloMerges(), merges); diff != "" {
		t.Fatalf("merges mismatch (-want +got):\n%s", diff)
	}
}
