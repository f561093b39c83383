package sinks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// newTestArchiveSink creates an ArchiveSink pointed at a test server.
func newTestArchiveSink(t *testing.T, handler http.Handler) *ArchiveSink {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewArchiveSink(client, "test-bucket", "hits", nil)
}

func TestArchiveSinkUploadsBatch(t *testing.T) {
	batch := []hit.Hit{scrollHit("h1", 10), scrollHit("h2", 30)}

	var (
		mu   sync.Mutex
		name string
		body string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		name = r.URL.Query().Get("name")
		body = string(data)
		mu.Unlock()

		fmt.Fprintln(w, `{ "name": "`+r.URL.Query().Get("name")+`" }`)
	})

	sink := newTestArchiveSink(t, handler)
	require.NoError(t, sink.Consume(context.Background(), batch))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "hits/2023/11/14/1700000000000000000-h1.jsonl", name)
	require.Equal(t, sink.ObjectName(batch), name)
	require.Contains(t, body, `"id":"h1"`)
	require.Contains(t, body, `"id":"h2"`)
}

func TestArchiveSinkSurfacesUploadErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	sink := newTestArchiveSink(t, handler)
	err := sink.Consume(context.Background(), []hit.Hit{scrollHit("h1", 10)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "archive object hits/")
}

func TestArchiveSinkIgnoresEmptyBatch(t *testing.T) {
	sink := NewArchiveSink(nil, "test-bucket", "hits", nil)
	require.NoError(t, sink.Consume(context.Background(), nil))
	require.NoError(t, sink.Close(context.Background()))
}
