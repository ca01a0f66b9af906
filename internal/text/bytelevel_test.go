package text

import (
	"testing"
	"unicode/utf8"
)

func TestByteLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{" world", "Ġworld"},
		{"a\nb", "aĊb"},
		{"\t", "ĉ"},
		{"é", "Ã©"},
		{"\x00", "Ā"},
		{"\xad", "Ń"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ByteLevel(tt.in); got != tt.want {
			t.Errorf("ByteLevel(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestByteLevel_AlphabetIsBijective(t *testing.T) {
	seen := make(map[rune]bool, 256)

	for b := range 256 {
		r := byteRunes[b]
		if seen[r] {
			t.Fatalf("rune %U used twice", r)
		}

		seen[r] = true

		if runeBytes[r] != byte(b) {
			t.Fatalf("runeBytes[%U] = %d; want %d", r, runeBytes[r], b)
		}
	}
}

func TestByteLevelDecode_RoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	for _, s := range []string{"hello world", "naïve café\n", "日本語", string(all)} {
		if got := ByteLevelDecode(ByteLevel(s)); got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
}

func TestByteLevelDecode_PassesThroughUnknownRunes(t *testing.T) {
	if got := ByteLevelDecode("Ġ日"); got != " 日" {
		t.Fatalf("ByteLevelDecode = %q; want %q", got, " 日")
	}
}

func TestByteLevelOffset(t *testing.T) {
	s := " é!"
	mapped := ByteLevel(s) // "Ġ" "Ã" "©" "!"

	for i := 0; i <= len(s); i++ {
		// Offset of the i-th mapped rune.
		off := 0
		for n := 0; n < i; n++ {
			_, size := utf8.DecodeRuneInString(mapped[off:])
			off += size
		}

		if got := ByteLevelOffset(mapped, off); got != i {
			t.Errorf("ByteLevelOffset(%d) = %d; want %d", off, got, i)
		}
	}
}
