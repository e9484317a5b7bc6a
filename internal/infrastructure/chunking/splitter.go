package chunking

import (
	"strings"
	"unicode"
)

// Splitter cuts text into overlapping rune windows for embedding. A window end is
// moved back to the nearest whitespace when one exists in the last quarter of the window.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToSpace(runes, start, end, s.ChunkSize/4)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func snapToSpace(runes []rune, start, end, window int) int {
	for i := end; i > end-window && i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
