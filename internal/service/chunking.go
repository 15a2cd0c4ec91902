package service

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200
)

// ChunkText slides a window of size runes over text, advancing by
// size-overlap. The final chunk may be shorter. An overlap outside
// [0, size) is treated as zero.
func ChunkText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/(size-overlap)+1)
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
