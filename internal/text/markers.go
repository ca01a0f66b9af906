package text

import "strings"

// StripMarkers renders decoded BPE output for display: every occurrence of
// prefix is removed and every occurrence of suffix becomes a space. The
// trailing space left by a final suffix is trimmed. Empty markers are
// ignored.
func StripMarkers(s, prefix, suffix string) string {
	if prefix != "" {
		s = strings.ReplaceAll(s, prefix, "")
	}

	if suffix != "" {
		s = strings.ReplaceAll(s, suffix, " ")
		s = strings.TrimRight(s, " ")
	}

	return s
}
