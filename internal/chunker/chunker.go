// Package chunker splits document content into overlapping windows that are
// small enough to send to the LLM one at a time.
package chunker

import "fmt"

// ConfigurationError reports chunking parameters that can never work.
type ConfigurationError struct {
	Size    int
	Overlap int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid chunk configuration: size %d must be greater than overlap %d, and overlap must be positive", e.Size, e.Overlap)
}

func validate(size, overlap int) error {
	if size > overlap && overlap > 0 {
		return nil
	}
	return &ConfigurationError{Size: size, Overlap: overlap}
}

// Span is a half-open range [Start, End) over the units of a source.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// Windows returns the sliding windows [i, i+size) over n units, advancing by
// size-overlap, until a window reaches n. The last window may be shorter.
func Windows(n, size, overlap int) []Span {
	if n <= 0 {
		return nil
	}
	step := size - overlap
	var spans []Span
	for i := 0; i < n; i += step {
		end := i + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: i, End: end})
		if end == n {
			break
		}
	}
	return spans
}
