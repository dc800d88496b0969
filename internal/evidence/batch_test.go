package evidence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradeproof/internal/storage"
	"tradeproof/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyObjects fails uploads whose path ends with a given suffix.
type flakyObjects struct {
	storage.ObjectStore
	failSuffix string
}

func (f flakyObjects) Put(ctx context.Context, path string, data []byte, opts storage.PutOptions) (string, error) {
	if len(path) >= len(f.failSuffix) && path[len(path)-len(f.failSuffix):] == f.failSuffix {
		return "", errors.New("connection reset")
	}
	return f.ObjectStore.Put(ctx, path, data, opts)
}

func TestIngestBatchAllSucceed(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.IngestBatch(context.Background(), f.scope, BatchUpload{
		JobID:        f.job.ID,
		EvidenceType: types.EvidenceProgress,
		Description:  "First fix",
		Files: []File{
			{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
			{Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
			{Name: "c.jpg", ContentType: "image/jpeg", Data: []byte("c")},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.AllSucceeded())
	assert.Equal(t, 3, res.Succeeded)
	assert.Len(t, f.objects.Paths(), 3)
	assert.Len(t, f.queue.tasks, 3)

	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		assert.Equal(t, name, res.Results[i].Filename)
		assert.True(t, res.Results[i].Success)
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.svc.objects = flakyObjects{ObjectStore: f.objects, failSuffix: "-bad.jpg"}

	res, err := f.svc.IngestBatch(context.Background(), f.scope, BatchUpload{
		JobID:        f.job.ID,
		EvidenceType: types.EvidenceAfter,
		Description:  "Finished",
		Files: []File{
			{Name: "good.jpg", Data: []byte("1")},
			{Name: "bad.jpg", Data: []byte("2")},
			{Name: "", Data: nil},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.AllSucceeded())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)

	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "Failed to upload file", res.Results[1].Error)
	assert.Equal(t, "Uploaded file is empty", res.Results[2].Error)
	assert.Len(t, f.objects.Paths(), 1)
}

func TestIngestBatchSameNameSameInstant(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	res, err := f.svc.IngestBatch(context.Background(), f.scope, BatchUpload{
		JobID:        f.job.ID,
		EvidenceType: types.EvidenceProgress,
		Description:  "Phone upload",
		Files: []File{
			{Name: "image.jpg", ContentType: "image/jpeg", Data: []byte("first")},
			{Name: "image.jpg", ContentType: "image/jpeg", Data: []byte("second")},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.AllSucceeded(), "results: %+v", res.Results)
	assert.Equal(t, 2, res.Succeeded)

	paths := f.objects.Paths()
	require.Len(t, paths, 2)
	assert.NotEqual(t, paths[0], paths[1])
	for _, p := range paths {
		assert.True(t, strings.HasSuffix(p, "-image.jpg"), p)
	}
}

func TestIngestBatchRequiresFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IngestBatch(context.Background(), f.scope, BatchUpload{JobID: f.job.ID})
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}
