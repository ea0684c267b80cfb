package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

// maxPageBytes caps how much of a web page is read.
const maxPageBytes = 10 << 20

// minArticleChars is the shortest readability result trusted as the main
// content; shorter results usually mean only the title was found.
const minArticleChars = 200

// Page is the readable content of a web page.
type Page struct {
	Title string
	Text  string
}

// WebPage fetches link and extracts its main text.
func WebPage(ctx context.Context, client *http.Client, link string) (*Page, error) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid link %q", link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; learnhub/1.0)")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", u.Host, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Host, err)
	}

	page, err := ParseHTML(body, u)
	if err != nil {
		return nil, err
	}
	if err := CheckWords(page.Text); err != nil {
		return nil, err
	}
	return page, nil
}

// ParseHTML extracts the title and main text of an HTML document.
func ParseHTML(body []byte, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	page := &Page{Title: collapseWhitespace(doc.Find("title").First().Text())}

	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		var sb strings.Builder
		if err := article.RenderText(&sb); err == nil {
			if text := normalizeLines(sb.String()); len(text) >= minArticleChars {
				page.Text = text
				return page, nil
			}
		}
	}

	page.Text = paragraphs(doc)
	if page.Text == "" {
		return nil, ErrNoText
	}
	return page, nil
}

// paragraphs is the fallback when readability finds nothing substantial.
func paragraphs(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, iframe").Remove()
	var lines []string
	doc.Find("h1, h2, h3, h4, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if t := collapseWhitespace(s.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return collapseWhitespace(doc.Find("body").Text())
	}
	return strings.Join(lines, "\n")
}

func normalizeLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = collapseWhitespace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
