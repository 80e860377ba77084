package extract

const (
	// DefaultChunkSize is the window width in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many characters consecutive chunks share.
	DefaultChunkOverlap = 200
)

// Chunks splits text into segments of at most size characters with the
// given overlap between consecutive segments. Size and overlap count
// runes, not bytes, so multi-byte input never splits mid-character. When
// a full-width window ends strictly inside the text, the right edge
// backs off to the last sentence terminator or line break inside the
// window (preferring the later of the two) so sentences aren't cut
// mid-way. Empty input yields no chunks; input shorter than size yields
// one chunk equal to the input.
func Chunks(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	var chunks []string
	runes := []rune(text)
	n := len(runes)
	start := 0
	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		if end < n && end-start == size {
			lastPeriod, lastNewline := -1, -1
			for i := start; i < end; i++ {
				switch runes[i] {
				case '.':
					lastPeriod = i
				case '\n':
					lastNewline = i
				}
			}
			if lastPeriod > lastNewline {
				end = lastPeriod + 1
			} else if lastNewline != -1 {
				end = lastNewline + 1
			}
		}

		chunks = append(chunks, string(runes[start:end]))

		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			// A boundary backoff landed inside the overlap; step past it
			// to guarantee forward progress.
			next = end
		}
		start = next
	}
	return chunks
}
