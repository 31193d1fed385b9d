package sharepoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkportal/backend/pkg/tokencache"
)

type fakeGraph struct {
	tokenCalls atomic.Int32
	uploads    map[string]string
	deleted    []string
}

func newFakeGraph(t *testing.T) (*fakeGraph, *httptest.Server) {
	g := &fakeGraph{uploads: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/drives/drive-1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer graph-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/drives/drive-1/")
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(rest, "root:"):
			b, _ := io.ReadAll(r.Body)
			path := strings.TrimSuffix(strings.TrimPrefix(rest, "root:"), ":/content")
			g.uploads[path] = string(b)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "item-1", "name": "report.pdf", "size": len(b),
				"webUrl": "https://tenant.sharepoint.com/report.pdf",
				"file":   map[string]any{"mimeType": "application/pdf"},
			})
		case r.Method == http.MethodGet && rest == "items/item-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "item-1", "@microsoft.graph.downloadUrl": "https://download/item-1",
			})
		case r.Method == http.MethodGet && rest == "items/no-link":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "no-link"})
		case r.Method == http.MethodDelete && rest == "items/item-1":
			g.deleted = append(g.deleted, "item-1")
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && rest == "root:/projects:/children":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "folder-1", "name": "p1"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return g, srv
}

func newTestClient(srv *httptest.Server, cache tokencache.Store) *Client {
	return New(Config{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		DriveID:      "drive-1",
		GraphURL:     srv.URL,
		TokenURL:     srv.URL + "/token",
	}, cache)
}

func TestUploadAndDownloadURL(t *testing.T) {
	g, srv := newFakeGraph(t)
	c := newTestClient(srv, nil)
	ctx := context.Background()

	item, err := c.Upload(ctx, strings.NewReader("pdf-bytes"), "report.pdf", "/projects/1/files/")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "application/pdf", item.MimeType())
	assert.Equal(t, "pdf-bytes", g.uploads["/projects/1/files/report.pdf"])

	link, err := c.DownloadURL(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "https://download/item-1", link)

	_, err = c.DownloadURL(ctx, "no-link")
	assert.Error(t, err)
}

func TestDeleteIgnoresMissingItem(t *testing.T) {
	g, srv := newFakeGraph(t)
	c := newTestClient(srv, nil)

	require.NoError(t, c.Delete(context.Background(), "item-1"))
	require.NoError(t, c.Delete(context.Background(), "gone"))
	assert.Equal(t, []string{"item-1"}, g.deleted)
}

func TestCreateFolder(t *testing.T) {
	_, srv := newFakeGraph(t)
	item, err := newTestClient(srv, nil).CreateFolder(context.Background(), "p1", "projects")
	require.NoError(t, err)
	assert.Equal(t, "folder-1", item.ID)
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	_, srv := newFakeGraph(t)
	_, err := newTestClient(srv, nil).GetItem(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestTokenSharedThroughCache(t *testing.T) {
	g, srv := newFakeGraph(t)
	cache := tokencache.NewMemoryStore()

	_, err := newTestClient(srv, cache).DownloadURL(context.Background(), "item-1")
	require.NoError(t, err)
	_, err = newTestClient(srv, cache).DownloadURL(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), g.tokenCalls.Load())
}

func TestNotConfigured(t *testing.T) {
	c := New(Config{TenantID: "tenant"}, nil)
	assert.False(t, c.Configured())

	_, err := c.Upload(context.Background(), strings.NewReader("x"), "a.txt", "/")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.DownloadURL(context.Background(), "id")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Delete(context.Background(), "id"), ErrNotConfigured)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/a/b/c.txt", joinPath("a/b/", "c.txt"))
	assert.Equal(t, "/c.txt", joinPath("/", "c.txt"))
	assert.Equal(t, "/my%20docs/x.txt", joinPath("/my docs", "x.txt"))
	assert.Equal(t, "/", joinPath("", ""))
}
