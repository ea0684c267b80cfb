// Package youtube fetches video captions so YouTube links can be turned into
// quizzes through the text pipeline.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"learnhub/internal/logger"
)

const (
	watchURL      = "https://www.youtube.com/watch?v="
	maxPageBytes  = 8 << 20
	snippetRadius = 200
)

var (
	videoIDRe    = regexp.MustCompile(`(?:youtube\.com\/(?:[^\/]+\/.+\/|(?:v|e(?:mbed)?|shorts)\/|.*[?&]v=)|youtu\.be\/)([^"&?\/\s]{11})`)
	bareIDRe     = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	titleRe      = regexp.MustCompile(`<title>(.+?) - YouTube</title>`)
	transcriptRe = regexp.MustCompile(`<text start="([^"]*)" dur="([^"]*)"[^>]*>([^<]*)</text>`)
)

// ErrNoCaptions is returned when a video has no caption tracks.
var ErrNoCaptions = errors.New("no captions available for this video")

// Transcript is the caption text of one video.
type Transcript struct {
	VideoID string
	Title   string
	Text    string
}

// Fetcher downloads transcripts over HTTP.
type Fetcher struct {
	client   *http.Client
	watchURL string
	log      *logger.Logger
}

func New(client *http.Client, log *logger.Logger) *Fetcher {
	return &Fetcher{client: client, watchURL: watchURL, log: log}
}

// IsYouTubeLink reports whether link points at a YouTube video.
func IsYouTubeLink(link string) bool {
	return videoIDRe.MatchString(link)
}

// VideoID extracts the 11 character video ID from a URL or bare ID.
func VideoID(link string) (string, error) {
	if bareIDRe.MatchString(link) {
		return link, nil
	}
	if m := videoIDRe.FindStringSubmatch(link); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("invalid YouTube URL or video ID: %q", link)
}

// Fetch returns the transcript of the video at link. When lang is set the
// caption track with that language code is preferred; otherwise, or if no
// such track exists, the first track is used.
func (f *Fetcher) Fetch(ctx context.Context, link, lang string) (*Transcript, error) {
	id, err := VideoID(link)
	if err != nil {
		return nil, err
	}

	page, err := f.get(ctx, f.watchURL+id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video page: %w", err)
	}

	tracks, err := captionTracks(page)
	if err != nil {
		f.log.Debug("Captions not found in video page", "video_id", id, "snippet", snippet(page, `"captions":`))
		return nil, err
	}
	track := tracks[0]
	for _, t := range tracks {
		if lang != "" && strings.EqualFold(t.LanguageCode, lang) {
			track = t
			break
		}
	}

	body, err := f.get(ctx, track.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	text := parseTranscript(body)
	if text == "" {
		return nil, ErrNoCaptions
	}

	t := &Transcript{VideoID: id, Text: text}
	if m := titleRe.FindStringSubmatch(page); m != nil {
		t.Title = html.UnescapeString(m[1])
	}
	return t, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
}

// captionTracks reads the caption track list embedded in the watch page.
func captionTracks(page string) ([]captionTrack, error) {
	_, after, ok := strings.Cut(page, `"captions":`)
	if !ok {
		return nil, ErrNoCaptions
	}
	end := strings.Index(after, `,"videoDetails`)
	if end < 0 {
		return nil, ErrNoCaptions
	}

	var captions struct {
		Renderer struct {
			Tracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	}
	if err := json.Unmarshal([]byte(after[:end]), &captions); err != nil {
		return nil, fmt.Errorf("failed to parse captions data: %w", err)
	}
	if len(captions.Renderer.Tracks) == 0 {
		return nil, ErrNoCaptions
	}
	return captions.Renderer.Tracks, nil
}

// parseTranscript joins the caption lines of a timedtext XML document.
func parseTranscript(body string) string {
	var lines []string
	for _, m := range transcriptRe.FindAllStringSubmatch(body, -1) {
		// caption text is escaped twice
		line := html.UnescapeString(html.UnescapeString(m[3]))
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}

func snippet(s, term string) string {
	i := strings.Index(s, term)
	if i < 0 {
		return s[:min(len(s), 2*snippetRadius)]
	}
	return s[max(0, i-snippetRadius):min(len(s), i+len(term)+snippetRadius)]
}
