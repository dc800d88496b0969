package storage

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tradeproof/pkg/types"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gcsBucket serves the slice of the JSON and XML APIs the client uses for
// one bucket, honouring ifGenerationMatch=0 on uploads.
type gcsBucket struct {
	name string

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (b *gcsBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		b.upload(w, r)
	case http.MethodGet:
		for name, data := range b.objects {
			if strings.HasSuffix(r.URL.Path, "/"+name) {
				w.Header().Set("Content-Type", b.types[name])
				_, _ = w.Write(data)
				return
			}
		}
		gcsError(w, http.StatusNotFound, "No such object")
	case http.MethodDelete:
		for name := range b.objects {
			if strings.HasSuffix(r.URL.Path, "/"+name) {
				delete(b.objects, name)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		gcsError(w, http.StatusNotFound, "No such object")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *gcsBucket) upload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	meta, err := mr.NextPart()
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}
	var attrs struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(meta).Decode(&attrs); err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}

	media, err := mr.NextPart()
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(media)
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, exists := b.objects[attrs.Name]; exists && r.URL.Query().Get("ifGenerationMatch") == "0" {
		gcsError(w, http.StatusPreconditionFailed, "At least one of the pre-conditions you specified did not hold.")
		return
	}

	b.objects[attrs.Name] = data
	b.types[attrs.Name] = attrs.ContentType

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"bucket":      b.name,
		"name":        attrs.Name,
		"contentType": attrs.ContentType,
		"size":        len(data),
		"generation":  "1",
	})
}

func (b *gcsBucket) put(name, contentType string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = data
	b.types[name] = contentType
}

func (b *gcsBucket) object(name string) ([]byte, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[name], b.types[name]
}

func (b *gcsBucket) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func gcsError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func newGCSTestStorage(t *testing.T) (*GCSStorage, *gcsBucket) {
	t.Helper()

	bucket := &gcsBucket{name: "evidence", objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	t.Setenv("STORAGE_EMULATOR_HOST", srv.Listener.Addr().String())

	client, err := gcs.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewGCSStorage(client, bucket.name), bucket
}

func TestGCSPut_NoClobberConflict(t *testing.T) {
	ctx := context.Background()
	s, bucket := newGCSTestStorage(t)

	path, err := s.Put(ctx, "u1/j1/1-n1-a.jpg", []byte("one"), PutOptions{ContentType: "image/jpeg", NoClobber: true})
	require.NoError(t, err)
	assert.Equal(t, "u1/j1/1-n1-a.jpg", path)
	data, contentType := bucket.object(path)
	assert.Equal(t, []byte("one"), data)
	assert.Equal(t, "image/jpeg", contentType)

	_, err = s.Put(ctx, path, []byte("two"), PutOptions{ContentType: "image/jpeg", NoClobber: true})
	require.ErrorIs(t, err, types.ErrUploadConflict)
	data, _ = bucket.object(path)
	assert.Equal(t, []byte("one"), data)
}

func TestGCSGetAndDelete(t *testing.T) {
	ctx := context.Background()
	s, bucket := newGCSTestStorage(t)
	bucket.put("u1/j1/1-n1-a.jpg", "image/jpeg", []byte("photo"))

	data, err := s.Get(ctx, "u1/j1/1-n1-a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("photo"), data)

	_, err = s.Get(ctx, "u1/j1/missing.jpg")
	require.ErrorIs(t, err, types.ErrObjectNotFound)

	require.NoError(t, s.Delete(ctx, "u1/j1/1-n1-a.jpg", "u1/j1/missing.jpg"))
	assert.Zero(t, bucket.count())
}
