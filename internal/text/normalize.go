// Package text holds the input side of the tokenization pipeline: text
// normalization, pre-tokenization into words, and grouping words into
// batch chunks.
package text

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Form selects an optional Unicode normalization form.
type Form string

const (
	FormNone Form = "none"
	FormNFC  Form = "nfc"
	FormNFKC Form = "nfkc"
)

// ParseForm parses a normalization form name. The empty string means FormNone.
func ParseForm(s string) (Form, error) {
	switch Form(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormNone:
		return FormNone, nil
	case FormNFC:
		return FormNFC, nil
	case FormNFKC:
		return FormNFKC, nil
	default:
		return "", fmt.Errorf("unknown normalization form %q (want none, nfc or nfkc)", s)
	}
}

// Normalize prepares raw input text for tokenization.
// It trims surrounding whitespace, normalizes line endings to \n,
// and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	// Normalize line endings: CRLF → LF, then bare CR → LF.
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// NormalizeForm runs Normalize and then applies form.
func NormalizeForm(s string, form Form) (string, error) {
	s, err := Normalize(s)
	if err != nil {
		return "", err
	}

	switch form {
	case FormNFC:
		s = norm.NFC.String(s)
	case FormNFKC:
		s = norm.NFKC.String(s)
	}

	return s, nil
}
