package chunker

import (
	"fmt"
	"strings"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200
)

// Chunk is one contiguous slice of the source text. Start and End are rune
// offsets into the source; Text == source[Start:End] in runes, so the
// offset-ordered chunks reconstruct the source exactly.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

type ChunkingError struct {
	Reason string
}

func (e *ChunkingError) Error() string {
	if e == nil {
		return "chunking failed"
	}
	return fmt.Sprintf("chunking failed: %s", e.Reason)
}

// Split cuts text into overlapping chunks of at most maxChunkSize runes.
// Boundaries prefer sentence ends in the back half of a chunk; otherwise the
// cut is a hard one. Works in runes so a UTF-8 sequence is never cut in half.
func Split(text string, maxChunkSize, overlap int) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ChunkingError{Reason: "empty input text"}
	}
	if maxChunkSize <= 0 {
		return nil, &ChunkingError{
			Reason: fmt.Sprintf("max chunk size %d must be positive", maxChunkSize),
		}
	}
	if overlap < 0 {
		return nil, &ChunkingError{
			Reason: fmt.Sprintf("overlap %d must not be negative", overlap),
		}
	}
	if maxChunkSize <= overlap {
		return nil, &ChunkingError{
			Reason: fmt.Sprintf("max chunk size %d must exceed overlap %d", maxChunkSize, overlap),
		}
	}

	r := []rune(text)
	out := make([]Chunk, 0, len(r)/(maxChunkSize-overlap)+1)

	start := 0
	for start < len(r) {
		end := start + maxChunkSize
		if end >= len(r) {
			end = len(r)
		} else if cut := sentenceCut(r, start, end); cut > 0 {
			end = cut
		}

		out = append(out, Chunk{
			Index: len(out),
			Text:  string(r[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(r) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return out, nil
}

// sentenceCut looks backwards from end for a sentence terminator in the back
// half of the chunk and returns the rune offset just past it, or 0.
func sentenceCut(r []rune, start, end int) int {
	min := start + (end-start)/2
	for i := end - 1; i > min; i-- {
		switch r[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return 0
}
