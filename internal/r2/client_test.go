package r2

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/logger"
)

type recorded struct {
	method, path, contentType string
	body                      []byte
}

func newTestClient(t *testing.T) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{r.Method, r.URL.Path, r.Header.Get("Content-Type"), b})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	c, err := NewClient(context.Background(), Options{
		Bucket:          "learnhub",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		PublicURL:       "https://pub.example.r2.dev/files",
		Endpoint:        srv.URL,
	}, logger.Nop())
	require.NoError(t, err)
	return c, &reqs
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("6f1c2b9e-3f4a-4c61-9d0e-2b7a1c9e8f00")
	assert.Equal(t, "documents/user-1/6f1c2b9e-3f4a-4c61-9d0e-2b7a1c9e8f00/notes.pdf", ObjectKey("user-1", id, "notes.pdf"))
	assert.Equal(t, "documents/user-1/6f1c2b9e-3f4a-4c61-9d0e-2b7a1c9e8f00/evil.pdf", ObjectKey("user-1", id, `..\..\evil.pdf`))
}

func TestUploadAndDelete(t *testing.T) {
	c, reqs := newTestClient(t)

	u, err := c.Upload(context.Background(), "documents/u/1/notes.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, "https://pub.example.r2.dev/files/documents/u/1/notes.pdf", u)

	require.NoError(t, c.Delete(context.Background(), "documents/u/1/notes.pdf"))

	require.Len(t, *reqs, 2)
	put := (*reqs)[0]
	assert.Equal(t, http.MethodPut, put.method)
	assert.Equal(t, "/learnhub/documents/u/1/notes.pdf", put.path)
	assert.Equal(t, "application/pdf", put.contentType)
	assert.Equal(t, []byte("%PDF-1.4"), put.body)
	assert.Equal(t, http.MethodDelete, (*reqs)[1].method)
}

func TestKeyFromURL(t *testing.T) {
	c, _ := newTestClient(t)

	key, ok := c.KeyFromURL(c.URL("documents/u/1/notes.pdf"))
	require.True(t, ok)
	assert.Equal(t, "documents/u/1/notes.pdf", key)

	_, ok = c.KeyFromURL("https://other.example.com/files/documents/u/1/notes.pdf")
	assert.False(t, ok)
}

func TestNewClientRejectsBadPublicURL(t *testing.T) {
	_, err := NewClient(context.Background(), Options{PublicURL: "not a url"}, logger.Nop())
	assert.Error(t, err)
}
