// Package extract turns uploaded documents and web pages into the plain text
// or images the generation engine works on, and enforces the size limits
// applied before any generation starts.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"learnhub/internal/models"
)

// Document size limits.
const (
	MaxPages = 300
	// MaxWords is roughly 258 tokens per page over MaxPages pages.
	MaxWords = 77400
	// WordsPerPage is the page estimate used for formats without pages.
	WordsPerPage = 250
)

// Kind classifies a file by what the pipeline does with it.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindDOCX
	KindText
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	}
	return "unknown"
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// KindOf maps a file name to its Kind by extension.
func KindOf(filename string) Kind {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		return KindPDF
	case ".docx", ".doc":
		return KindDOCX
	case ".md", ".txt":
		return KindText
	default:
		if _, ok := imageTypes[ext]; ok {
			return KindImage
		}
	}
	return KindUnknown
}

// UnsupportedTypeError is returned for files no extractor handles.
type UnsupportedTypeError struct {
	Ext string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

// LimitError reports a document over one of the size limits.
type LimitError struct {
	Unit string
	Got  int
	Max  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("document too large: %d %s exceeds the limit of %d", e.Got, e.Unit, e.Max)
}

// ErrNoText is returned when a document yields no usable text.
var ErrNoText = errors.New("no text could be extracted from the document")

// CheckWords enforces MaxWords on already extracted text.
func CheckWords(text string) error {
	if n := len(strings.Fields(text)); n > MaxWords {
		return &LimitError{Unit: "words", Got: n, Max: MaxWords}
	}
	return nil
}

func checkPages(n int) error {
	if n > MaxPages {
		return &LimitError{Unit: "pages", Got: n, Max: MaxPages}
	}
	return nil
}

// PlainText validates a .txt or .md upload.
func PlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	text := strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff"))
	if text == "" {
		return "", ErrNoText
	}
	if err := CheckWords(text); err != nil {
		return "", err
	}
	return text, nil
}

// Image wraps an image upload as inline media.
func Image(filename string, data []byte) (models.Media, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mime, ok := imageTypes[ext]
	if !ok {
		return models.Media{}, &UnsupportedTypeError{Ext: ext}
	}
	if len(data) == 0 {
		return models.Media{}, fmt.Errorf("empty image: %s", filename)
	}
	return models.Media{MIMEType: mime, Data: data}, nil
}

// MIMEType returns the upload content type for a supported file name.
func MIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := imageTypes[ext]; ok {
		return mime
	}
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
