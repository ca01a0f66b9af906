package text

import (
	"strings"
	"unicode/utf8"
)

// byteRunes is the GPT-2 byte-level alphabet: printable Latin-1 bytes map to
// themselves and the remaining bytes to U+0100 onwards, so every byte has a
// visible, non-space rune. runeBytes is its inverse.
var (
	byteRunes [256]rune
	runeBytes = make(map[rune]byte, 256)
)

func init() {
	next := rune(0x100)

	for b := range 256 {
		r := rune(b)

		printable := (r >= '!' && r <= '~') || (r >= 0xA1 && r <= 0xAC) || (r >= 0xAE && r <= 0xFF)
		if !printable {
			r = next
			next++
		}

		byteRunes[b] = r
		runeBytes[r] = byte(b)
	}
}

// ByteLevel maps every byte of s to its byte-level rune, e.g. a space
// becomes "Ġ".
func ByteLevel(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 2)

	for i := 0; i < len(s); i++ {
		sb.WriteRune(byteRunes[s[i]])
	}

	return sb.String()
}

// ByteLevelDecode reverses ByteLevel. Runes outside the byte-level alphabet
// are copied through unchanged.
func ByteLevelDecode(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for _, r := range s {
		if b, ok := runeBytes[r]; ok {
			sb.WriteByte(b)
			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

// ByteLevelOffset converts a byte offset into ByteLevel(s) back to the
// matching byte offset into s.
func ByteLevelOffset(mapped string, off int) int {
	return utf8.RuneCountInString(mapped[:off])
}
