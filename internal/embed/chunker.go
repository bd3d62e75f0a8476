package embed

import "github.com/Sumatoshi-tech/logfang/internal/logmodel"

// DefaultChunkBytes is the target chunk size. Trace texts are bounded at
// the embed-text limit, so most records produce a single chunk.
const DefaultChunkBytes = logmodel.MaxEmbedTextBytes

// Chunk splits text into chunks of at most chunkBytes, preferring newline
// boundaries. Empty input yields no chunks; non-empty input always yields
// at least one.
func Chunk(text string, chunkBytes int) []string {
	if text == "" {
		return nil
	}

	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}

	if len(text) <= chunkBytes {
		return []string{text}
	}

	var chunks []string

	for len(text) > chunkBytes {
		cut := chunkBytes

		// Back up to the last newline inside the window when one exists
		// past the halfway mark, so lines stay intact.
		if idx := lastNewlineBefore(text, chunkBytes); idx > chunkBytes/2 {
			cut = idx
		}

		chunk := logmodel.Truncate(text[:cut], chunkBytes)
		chunks = append(chunks, chunk)
		text = text[len(chunk):]

		// Skip a leading newline carried over from the split point.
		if len(text) > 0 && text[0] == '\n' {
			text = text[1:]
		}
	}

	if text != "" {
		chunks = append(chunks, text)
	}

	return chunks
}

func lastNewlineBefore(s string, limit int) int {
	for i := limit - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}

	return -1
}
