package storage

import (
	"context"
	"errors"
	"io"
	"net/http"

	"tradeproof/pkg/types"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStorage stores objects in one Google Cloud Storage bucket.
type GCSStorage struct {
	bucket *gcs.BucketHandle
}

func NewGCSStorage(client *gcs.Client, bucket string) *GCSStorage {
	return &GCSStorage{bucket: client.Bucket(bucket)}
}

func (s *GCSStorage) Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error) {
	obj := s.bucket.Object(path)
	if opts.NoClobber {
		obj = obj.If(gcs.Conditions{DoesNotExist: true})
	}

	// The whole object is already in memory, so send it in one request.
	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", types.StorageError("Failed to upload file", err)
	}

	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", types.ErrUploadConflict
		}
		return "", types.StorageError("Failed to upload file", err)
	}

	return path, nil
}

func (s *GCSStorage) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := s.bucket.Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, types.ErrObjectNotFound
		}
		return nil, types.StorageError("Failed to download file", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, types.StorageError("Failed to download file", err)
	}

	return data, nil
}

// Delete removes each object in turn; GCS has no batch delete in the client.
// Already missing objects count as deleted.
func (s *GCSStorage) Delete(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		err := s.bucket.Object(p).Delete(ctx)
		if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return types.StorageError("Failed to delete file", err)
		}
	}
	return nil
}
