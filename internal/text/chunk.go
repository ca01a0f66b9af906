package text

// ChunkWords groups consecutive words into chunks of at most maxBytes bytes
// of word text, preserving order. If maxBytes is 0, a single chunk is
// returned. A word that individually exceeds maxBytes forms its own chunk.
func ChunkWords(words []string, maxBytes int) [][]string {
	if len(words) == 0 {
		return nil
	}

	if maxBytes <= 0 {
		return [][]string{words}
	}

	var (
		chunks  [][]string
		current []string
		size    int
	)

	for _, w := range words {
		if len(current) > 0 && size+len(w) > maxBytes {
			chunks = append(chunks, current)
			current, size = nil, 0
		}

		current = append(current, w)
		size += len(w)
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}
