package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/logger"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=10", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		got, err := VideoID(tt.link)
		require.NoError(t, err, tt.link)
		assert.Equal(t, tt.want, got, tt.link)
		assert.True(t, IsYouTubeLink(tt.link) || tt.link == tt.want)
	}

	_, err := VideoID("https://example.com/article")
	assert.Error(t, err)
	assert.False(t, IsYouTubeLink("https://example.com/watch?v=short"))
}

func TestParseTranscript(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
		`<text start="0.5" dur="2.1">Welcome to   the lesson</text>` +
		`<text start="2.6" dur="1.9">it&amp;#39;s about cells</text>` +
		`<text start="4.5" dur="1">  </text>` +
		`</transcript>`
	assert.Equal(t, "Welcome to the lesson it's about cells", parseTranscript(body))
}

func watchPage(baseURL string) string {
	return fmt.Sprintf(`<html><head><title>Cell Biology &amp; You - YouTube</title></head><body><script>
var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
{"baseUrl":"%[1]s/timedtext?lang=en","languageCode":"en"},
{"baseUrl":"%[1]s/timedtext?lang=fr","languageCode":"fr"}]}},"videoDetails":{"videoId":"dQw4w9WgXcQ"}};
</script></body></html>`, baseURL)
}

func TestFetch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			_, _ = w.Write([]byte(watchPage(srv.URL)))
		case "/timedtext":
			fmt.Fprintf(w, `<transcript><text start="0" dur="1">caption in %s</text></transcript>`, r.URL.Query().Get("lang"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(srv.Client(), logger.Nop())
	f.watchURL = srv.URL + "/watch?v="

	tr, err := f.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Equal(t, "Cell Biology & You", tr.Title)
	assert.Equal(t, "caption in en", tr.Text)

	tr, err = f.Fetch(context.Background(), "dQw4w9WgXcQ", "FR")
	require.NoError(t, err)
	assert.Equal(t, "caption in fr", tr.Text)

	tr, err = f.Fetch(context.Background(), "dQw4w9WgXcQ", "de")
	require.NoError(t, err)
	assert.Equal(t, "caption in en", tr.Text)
}

func TestFetchWithoutCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><title>Music - YouTube</title></html>`))
	}))
	defer srv.Close()

	f := New(srv.Client(), logger.Nop())
	f.watchURL = srv.URL + "/watch?v="

	_, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", "")
	assert.ErrorIs(t, err, ErrNoCaptions)
}
