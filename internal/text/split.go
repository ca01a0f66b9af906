package text

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// GPT2Pattern is the GPT-2 pre-tokenization pattern. Matches cover the whole
// input, so leading spaces stay attached to the following word.
const GPT2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Word is one pre-tokenized word and its byte offset in the input.
type Word struct {
	Text   string
	Offset int
}

// Splitter splits normalized text into the words handed to the BPE model.
type Splitter interface {
	Split(s string) ([]Word, error)
}

// Texts returns the text of every word.
func Texts(words []Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}

	return out
}

// NewSplitter returns the splitter registered under name: "regex" (using
// pattern, or GPT2Pattern when empty) or "whitespace".
func NewSplitter(name, pattern string) (Splitter, error) {
	switch strings.ToLower(name) {
	case "", "regex":
		return NewRegexSplitter(pattern)
	case "whitespace":
		return WhitespaceSplitter{}, nil
	default:
		return nil, fmt.Errorf("unknown splitter %q (want regex or whitespace)", name)
	}
}

// ---------------------------------------------------------------------------
// RegexSplitter
// ---------------------------------------------------------------------------

// RegexSplitter emits every regex match plus any unmatched gap between
// matches as a word.
type RegexSplitter struct {
	re *regexp2.Regexp
}

// NewRegexSplitter compiles pattern. An empty pattern selects GPT2Pattern.
func NewRegexSplitter(pattern string) (*RegexSplitter, error) {
	if pattern == "" {
		pattern = GPT2Pattern
	}

	re, err := regexp2.Compile(pattern, regexp2.Unicode|regexp2.RE2)
	if err != nil {
		return nil, fmt.Errorf("compile split pattern: %w", err)
	}

	return &RegexSplitter{re: re}, nil
}

// Split implements Splitter.
func (s *RegexSplitter) Split(in string) ([]Word, error) {
	runes := []rune(in)

	// byteAt[i] is the byte offset of runes[i]; byteAt[len(runes)] == len(in).
	byteAt := make([]int, len(runes)+1)
	for i, r := range runes {
		byteAt[i+1] = byteAt[i] + utf8.RuneLen(r)
	}

	var words []Word

	emit := func(from, to int) {
		if from < to {
			words = append(words, Word{Text: string(runes[from:to]), Offset: byteAt[from]})
		}
	}

	offset := 0

	m, err := s.re.FindRunesMatch(runes)
	for ; m != nil && err == nil; m, err = s.re.FindNextMatch(m) {
		emit(offset, m.Index)
		emit(m.Index, m.Index+m.Length)
		offset = m.Index + m.Length
	}

	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	emit(offset, len(runes))

	return words, nil
}

// ---------------------------------------------------------------------------
// WhitespaceSplitter
// ---------------------------------------------------------------------------

// WhitespaceSplitter splits on Unicode whitespace and drops it.
type WhitespaceSplitter struct{}

// Split implements Splitter.
func (WhitespaceSplitter) Split(in string) ([]Word, error) {
	var words []Word

	start := -1
	for i, r := range in {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, Word{Text: in[start:i], Offset: start})
				start = -1
			}

			continue
		}

		if start < 0 {
			start = i
		}
	}

	if start >= 0 {
		words = append(words, Word{Text: in[start:], Offset: start})
	}

	return words, nil
}
