package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFPageCount returns the number of pages in a PDF.
func PDFPageCount(data []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("pdf reader: %w", err)
	}
	return r.NumPage(), nil
}

// PDFText extracts the text layer of a PDF after checking MaxPages and
// MaxWords.
func PDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	if err := checkPages(r.NumPage()); err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	text := collapseWhitespace(string(b))
	if text == "" {
		return "", ErrNoText
	}
	if err := CheckWords(text); err != nil {
		return "", err
	}
	return text, nil
}

// DOCXText extracts paragraph text from word/document.xml. Pages are
// estimated at WordsPerPage words each.
func DOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("file is not a valid docx container: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open word/document.xml: %w", err)
	}
	defer rc.Close()

	text, err := wordParagraphs(rc)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoText
	}
	words := len(strings.Fields(text))
	if err := checkPages((words + WordsPerPage - 1) / WordsPerPage); err != nil {
		return "", err
	}
	if err := CheckWords(text); err != nil {
		return "", err
	}
	return text, nil
}

// wordParagraphs joins <w:t> runs, one line per <w:p>.
func wordParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var out, para strings.Builder
	flush := func() {
		if line := collapseWhitespace(para.String()); line != "" {
			out.WriteString(line)
			out.WriteString("\n")
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse word/document.xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &el); err != nil {
					return "", fmt.Errorf("parse word/document.xml: %w", err)
				}
				para.WriteString(v)
			case "tab":
				para.WriteString(" ")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				flush()
			}
		}
	}
	flush()
	return strings.TrimSpace(out.String()), nil
}
