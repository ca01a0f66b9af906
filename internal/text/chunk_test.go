package text

import (
	"reflect"
	"testing"
)

func TestChunkWords(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		maxBytes int
		want     [][]string
	}{
		{
			name:     "no words",
			words:    nil,
			maxBytes: 10,
			want:     nil,
		},
		{
			name:     "zero limit keeps one chunk",
			words:    []string{"a", "bb", "ccc"},
			maxBytes: 0,
			want:     [][]string{{"a", "bb", "ccc"}},
		},
		{
			name:     "all within limit",
			words:    []string{"a", "bb", "ccc"},
			maxBytes: 6,
			want:     [][]string{{"a", "bb", "ccc"}},
		},
		{
			name:     "splits when limit exceeded",
			words:    []string{"a", "bb", "ccc"},
			maxBytes: 3,
			want:     [][]string{{"a", "bb"}, {"ccc"}},
		},
		{
			name:     "oversized word kept intact",
			words:    []string{"a", "toolong", "b"},
			maxBytes: 3,
			want:     [][]string{{"a"}, {"toolong"}, {"b"}},
		},
		{
			name:     "multibyte counted in bytes",
			words:    []string{"é", "é"},
			maxBytes: 3,
			want:     [][]string{{"é"}, {"é"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkWords(tt.words, tt.maxBytes)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChunkWords(%q, %d) = %q, want %q", tt.words, tt.maxBytes, got, tt.want)
			}
		})
	}
}

func TestChunkWords_PreservesOrder(t *testing.T) {
	words := []string{"one", " two", " three", " four", " five"}

	var flat []string
	for _, c := range ChunkWords(words, 7) {
		flat = append(flat, c...)
	}

	if !reflect.DeepEqual(flat, words) {
		t.Errorf("flattened chunks = %q, want %q", flat, words)
	}
}
