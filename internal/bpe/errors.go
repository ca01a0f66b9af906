package bpe

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMergeRule is returned by New when a merge references a token,
	// or produces a token, that is missing from the vocabulary.
	ErrInvalidMergeRule = errors.New("invalid merge rule")
	// ErrUnknownTokenNotInVocab is returned by New when Config.UnkToken is set
	// but absent from the vocabulary.
	ErrUnknownTokenNotInVocab = errors.New("unk token not in vocabulary")
	// ErrInvalidDropout is returned by New when Config.Dropout is outside [0, 1].
	ErrInvalidDropout = errors.New("dropout must be between 0 and 1")
	// ErrUnmappableCharacter is returned when a character has no vocabulary
	// entry and neither byte fallback nor an unk token can represent it.
	ErrUnmappableCharacter = errors.New("unmappable character")
	// ErrUnknownID is returned by Decode for ids outside the vocabulary.
	ErrUnknownID = errors.New("unknown token id")
	// ErrDuplicateID is returned when two vocabulary tokens share an id.
	ErrDuplicateID = errors.New("duplicate token id")
)

// MergeRuleError identifies the merge that failed validation.
type MergeRuleError struct {
	Index   int // position in the merges list, i.e. the rank
	Merge   Merge
	Missing string // the token that is not in the vocabulary
}

func (e *MergeRuleError) Error() string {
	return fmt.Sprintf("%v: merge %d (%q, %q): token %q not in vocabulary",
		ErrInvalidMergeRule, e.Index, e.Merge.Left, e.Merge.Right, e.Missing)
}

func (e *MergeRuleError) Unwrap() error { return ErrInvalidMergeRule }

// UnmappableCharacterError reports the first character of a word that could
// not be mapped to any token.
type UnmappableCharacterError struct {
	Word   string
	Char   string
	Offset int // byte offset of Char in Word
}

func (e *UnmappableCharacterError) Error() string {
	return fmt.Sprintf("%v %q at byte %d of %q", ErrUnmappableCharacter, e.Char, e.Offset, e.Word)
}

func (e *UnmappableCharacterError) Unwrap() error { return ErrUnmappableCharacter }

// UnknownIDError reports an id with no vocabulary entry.
type UnknownIDError struct {
	ID uint32
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("%v %d", ErrUnknownID, e.ID)
}

func (e *UnknownIDError) Unwrap() error { return ErrUnknownID }
