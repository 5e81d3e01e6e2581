package pipeline

// Default chunking parameters: fixed windows with a small overlap so
// context at window boundaries is not lost.
const (
	DefaultChunkSize = 4000
	DefaultOverlap   = 200
)

// Split cuts text into fixed-size overlapping windows. The step between
// windows is size-overlap (minimum 1); the last window may be shorter.
// Empty text yields no chunks.
func Split(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
