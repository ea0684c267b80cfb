package chunker

import "learnhub/internal/models"

// ImageChunk is a run of consecutive pages or images. Start and End are indexes
// into the original sequence.
type ImageChunk struct {
	Index  int
	Start  int
	End    int
	Images []models.Media
}

// ImageChunker windows an ordered image sequence by count.
type ImageChunker struct {
	size    int
	overlap int
}

// NewImage returns an ImageChunker with size and overlap counted in images.
func NewImage(size, overlap int) (*ImageChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &ImageChunker{size: size, overlap: overlap}, nil
}

func (c *ImageChunker) Chunk(images []models.Media) []ImageChunk {
	spans := Windows(len(images), c.size, c.overlap)
	chunks := make([]ImageChunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, ImageChunk{
			Index:  i,
			Start:  s.Start,
			End:    s.End,
			Images: images[s.Start:s.End],
		})
	}
	return chunks
}
