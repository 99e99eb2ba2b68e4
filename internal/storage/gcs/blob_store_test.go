package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	if cfg.Bucket == "" {
		cfg.Bucket = "test-bucket"
	}
	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	base := filepath.Join("data_raw")
	store := &BlobStore{bucket: "b", prefix: "nidus", baseDir: base}
	assert.Equal(t, "nidus/github/test.urdf", store.ObjectName(filepath.Join(base, "github", "test.urdf")))

	store.prefix = ""
	assert.Equal(t, "vendors/manual.pdf", store.ObjectName(filepath.Join(base, "vendors", "manual.pdf")))
	assert.Equal(t, "elsewhere/file.txt", store.ObjectName("/elsewhere/file.txt"))
}

func TestPutUploadsObject(t *testing.T) {
	t.Parallel()

	payload := []byte("%PDF-1.7 test")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "mirror/standards/stanag.pdf", r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(payload))

		fmt.Fprintln(w, `{ "name": "mirror/standards/stanag.pdf" }`)
	})
	store := newTestStore(t, handler, Config{Prefix: "mirror", BaseDir: "/data"})

	err := store.Put(context.Background(), "/data/standards/stanag.pdf", payload)
	require.NoError(t, err)
}

func TestPutObjectReturnsURI(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{ "name": "obj" }`)
	})
	store := newTestStore(t, handler, Config{})

	uri, err := store.PutObject(context.Background(), "obj", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/obj", uri)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("hello"))
	require.Error(t, err)
}

func TestPutServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := newTestStore(t, handler, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := store.Put(ctx, "github/test.urdf", []byte("<robot/>"))
	require.Error(t, err)
}

func TestPutEmptyPath(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "b"}
	require.Error(t, store.Put(context.Background(), " ", []byte("x")))
}

func TestDialChecksBucket(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/b/missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"not found"}}`)
			return
		}
		fmt.Fprintln(w, `{"name":"present"}`)
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts := []option.ClientOption{option.WithEndpoint(server.URL), option.WithoutAuthentication()}

	store, err := Dial(context.Background(), Config{Bucket: "present"}, nil, opts...)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Dial(context.Background(), Config{Bucket: "missing"}, nil, opts...)
	require.Error(t, err)
}
