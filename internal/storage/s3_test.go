package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedObject struct {
	data        []byte
	contentType string
	acl         string
}

// fakeS3 serves path-style PUT and GET object requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]storedObject
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[path] = storedObject{
			data:        data,
			contentType: r.Header.Get("Content-Type"),
			acl:         r.Header.Get("X-Amz-Acl"),
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		obj, ok := f.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		_, _ = w.Write(obj.data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]storedObject)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), Config{
		Bucket:          "certs",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store_UploadAndGet(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	key := "users/u1/exam/42.pdf"

	url, err := store.Upload(ctx, key, bytes.NewReader([]byte("%PDF-1.7 test")), "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "/certs/users/u1/exam/42.pdf"), url)

	stored := fake.objects["certs/"+key]
	assert.Equal(t, "%PDF-1.7 test", string(stored.data))
	assert.Equal(t, "application/pdf", stored.contentType)
	assert.Equal(t, "private", stored.acl)

	obj, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, obj.Key)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, []byte("%PDF-1.7 test"), obj.Data)
}

func TestS3Store_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "users/u1/exam/missing.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"public base", Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{"path style endpoint", Config{Bucket: "b", Endpoint: "http://minio:9000", UsePathStyle: true}, "http://minio:9000/b"},
		{"virtual host endpoint", Config{Bucket: "b", Endpoint: "https://s3.example.com"}, "https://b.s3.example.com"},
		{"aws", Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.cfg))
		})
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), Config{})
	assert.Error(t, err)
}
