package chunker

// Chunk is a contiguous span of text. Start and End are rune offsets into the source.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// TextChunker cuts text into overlapping windows, preferring to end a window
// on a sentence boundary.
type TextChunker struct {
	size    int
	overlap int
}

// NewText returns a TextChunker measuring size and overlap in runes.
func NewText(size, overlap int) (*TextChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &TextChunker{size: size, overlap: overlap}, nil
}

func (c *TextChunker) Size() int    { return c.size }
func (c *TextChunker) Overlap() int { return c.overlap }

// Chunk splits text into windows of at most size runes. A window that would
// cut through a sentence is shortened to the last sentence terminator found
// in its second half; the next window always starts overlap runes before the
// previous window's end.
func (c *TextChunker) Chunk(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	for start := 0; ; {
		end := start + c.size
		if end >= n {
			end = n
		} else if cut := c.sentenceCut(runes, start, end); cut > 0 {
			end = cut
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == n {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// sentenceCut returns the offset just past the last terminator in the
// window, or 0 if there is none late enough to keep the window useful and
// the next start strictly ahead of this one.
func (c *TextChunker) sentenceCut(runes []rune, start, end int) int {
	minCut := start + c.size/2
	if minCut <= start+c.overlap {
		minCut = start + c.overlap + 1
	}
	for i := end - 1; i >= minCut-1 && i > start; i-- {
		if isTerminator(runes[i]) {
			return i + 1
		}
	}
	return 0
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}
