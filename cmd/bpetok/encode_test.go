package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/testutil"
)

func TestEncode_IDs(t *testing.T) {
	out, _, err := runCLI(t, nil, "encode", "--text", "hello hell")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if out != "7 6\n" {
		t.Fatalf("stdout = %q; want %q", out, "7 6\n")
	}
}

func TestEncode_Stdin(t *testing.T) {
	out, _, err := runCLI(t, strings.NewReader("he\n"), "encode")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if out != "4\n" {
		t.Fatalf("stdout = %q; want %q", out, "4\n")
	}
}

func TestEncode_File(t *testing.T) {
	file := testutil.WriteFile(t, "in.txt", "hello\nhello\n")

	out, _, err := runCLI(t, nil, "encode", "--file", file)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if out != "7 7\n" {
		t.Fatalf("stdout = %q; want %q", out, "7 7\n")
	}
}

func TestEncode_JSON(t *testing.T) {
	out, _, err := runCLI(t, nil, "encode", "--text", "hello he", "--format", "json")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got struct {
		IDs []uint32 `json:"ids"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}

	if diff := cmp.Diff([]uint32{7, 4}, got.IDs); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_Tokens(t *testing.T) {
	out, _, err := runCLI(t, nil, "encode", "--text", "hello hell", "--format", "tokens")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	want := "7\thello\t0:5\n6\thell\t6:10\n"
	if out != want {
		t.Fatalf("stdout = %q; want %q", out, want)
	}
}

func TestEncode_UnmappableFails(t *testing.T) {
	_, _, err := runCLI(t, nil, "encode", "--text", "hex")
	if err == nil {
		t.Fatal("expected error for unmappable character")
	}
}

func TestEncode_UnkToken(t *testing.T) {
	out, _, err := runCLI(t, nil, "encode", "--text", "hex", "--unk-token", "[UNK]")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if out != "4 8\n" {
		t.Fatalf("stdout = %q; want %q", out, "4 8\n")
	}
}

func TestEncode_BadFormat(t *testing.T) {
	_, _, err := runCLI(t, nil, "encode", "--text", "hello", "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "--format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestTokenize(t *testing.T) {
	out, _, err := runCLI(t, nil, "tokenize", "hello", "he")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	want := "7\thello\t0:5\n4\the\t0:2\n"
	if out != want {
		t.Fatalf("stdout = %q; want %q", out, want)
	}
}

func TestTokenize_JSON(t *testing.T) {
	out, _, err := runCLI(t, nil, "tokenize", "hell", "--format", "json")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	var got struct {
		Word   string      `json:"word"`
		Tokens []bpe.Token `json:"tokens"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}

	want := []bpe.Token{{ID: 6, Value: "hell", Offsets: [2]int{0, 4}}}
	if diff := cmp.Diff(want, got.Tokens); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenize_RequiresWord(t *testing.T) {
	if _, _, err := runCLI(t, nil, "tokenize"); err == nil {
		t.Fatal("expected error without words")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{name: "args", args: []string{"7", "6"}, want: "hellohell\n"},
		{name: "comma separated", args: []string{"4,5,3"}, want: "hello\n"},
		{name: "stdin", stdin: "7\n4\n", want: "hellohe\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"decode"}, tt.args...)

			out, _, err := runCLI(t, strings.NewReader(tt.stdin), args...)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			if out != tt.want {
				t.Fatalf("stdout = %q; want %q", out, tt.want)
			}
		})
	}
}

func TestDecode_StripMarkers(t *testing.T) {
	vocab := map[string]uint32{"h": 0, "e</w>": 1, "he</w>": 2}
	merges := []bpe.Merge{{Left: "h", Right: "e</w>"}}
	vocabPath, mergesPath := testutil.WriteModelFiles(t, vocab, merges)

	base := []string{"--vocab", vocabPath, "--merges", mergesPath, "--end-of-word-suffix", "</w>", "--log-level", "error"}

	out, _, err := runCLIWith(t, nil, append([]string{"decode", "2", "2"}, base...)...)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out != "he</w>he</w>\n" {
		t.Fatalf("raw stdout = %q", out)
	}

	out, _, err = runCLIWith(t, nil, append([]string{"decode", "2", "2", "--strip-markers"}, base...)...)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out != "he he\n" {
		t.Fatalf("stripped stdout = %q; want %q", out, "he he\n")
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"decode", "abc"},
		{"decode", "99"},
		{"decode", "-1"},
		{"decode"},
	} {
		if _, _, err := runCLI(t, nil, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestParseIDs(t *testing.T) {
	got, err := parseIDs([]string{"1", "2,3", " 4 ,", "4294967295"})
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}

	if diff := cmp.Diff([]uint32{1, 2, 3, 4, 4294967295}, got); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseIDs([]string{"4294967296"}); err == nil {
		t.Error("expected overflow error")
	}
}
