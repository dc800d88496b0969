package evidence

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/geo"
	"tradeproof/internal/hashing"
	"tradeproof/internal/storage"
	"tradeproof/internal/store"
	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []anchor.Task
}

func (q *recordingQueue) Enqueue(task anchor.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return true
}

type fixture struct {
	svc     *Service
	db      *store.Memory
	objects *storage.MemoryStorage
	queue   *recordingQueue
	scope   types.Scope
	job     *types.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := store.NewMemory()
	objects := storage.NewMemoryStorage()
	queue := &recordingQueue{}
	scope := types.NewScope("7c0d7f36-0000-4000-8000-000000000001")

	job := &types.Job{ClientName: "Jane Client", JobType: types.JobTypeKitchen}
	require.NoError(t, db.CreateJob(context.Background(), scope, job))

	logger, _ := test.NewNullLogger()
	svc := NewService(db, db, db, objects, queue, Limits{
		MaxUploadBytes:       1 << 20,
		MaxDescriptionLength: 2000,
		BatchConcurrency:     2,
	}, logger)

	var mu sync.Mutex
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}

	return &fixture{svc: svc, db: db, objects: objects, queue: queue, scope: scope, job: job}
}

func jpegBytes(t *testing.T, size int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 120, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.Less(t, buf.Len(), size)

	// Decoders stop at the EOI marker, so padding keeps the file valid.
	return append(buf.Bytes(), make([]byte, size-buf.Len())...)
}

func TestIngestJPEGScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	data := jpegBytes(t, 100*1024)

	res, err := f.svc.Ingest(ctx, f.scope, Upload{
		JobID:        f.job.ID,
		EvidenceType: types.EvidenceBefore,
		Description:  "Kitchen pre-work",
		File:         &File{Name: "pre-work.jpg", ContentType: "image/jpeg", Data: data},
		Meta:         types.RequestMeta{IPAddress: "203.0.113.9", UserAgent: "test"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Hash)
	assert.Len(t, *res.Hash, 64)
	assert.Equal(t, strings.ToLower(*res.Hash), *res.Hash)
	assert.True(t, hashing.Verify(data, *res.Hash))

	items, err := f.svc.List(ctx, f.scope, f.job.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, *res.Hash, *items[0].FileHash)
	assert.Nil(t, items[0].BlockchainTimestamp)
	assert.Equal(t, int64(len(data)), items[0].FileSizeBytes)

	stored, err := f.objects.Get(ctx, *res.Path)
	require.NoError(t, err)
	assert.True(t, hashing.Verify(stored, *res.Hash))
	assert.Equal(t, "image/jpeg", f.objects.ContentType(*res.Path))

	assert.Equal(t, []anchor.Task{{EvidenceID: res.EvidenceID, UserID: f.scope.UserID}}, f.queue.tasks)

	logs := f.db.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, types.AuditEvidenceUploaded, logs[0].Action)
	assert.Equal(t, *res.Hash, logs[0].Details["hash"])
	assert.Equal(t, "203.0.113.9", *logs[0].IPAddress)

	job, err := f.db.Job(ctx, f.scope, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Score, job.ProtectionStatus)
	assert.Equal(t, 22, job.ProtectionStatus)
}

func TestIngestSameBytesDifferentName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	data := []byte("identical bytes")

	first, err := f.svc.Ingest(ctx, f.scope, Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceProgress, Description: "a",
		File: &File{Name: "one.txt", ContentType: "text/plain", Data: data},
	})
	require.NoError(t, err)

	second, err := f.svc.Ingest(ctx, f.scope, Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceProgress, Description: "b",
		File: &File{Name: "two.txt", ContentType: "text/plain", Data: data},
	})
	require.NoError(t, err)

	assert.Equal(t, *first.Hash, *second.Hash)
	assert.NotEqual(t, *first.Path, *second.Path)
	assert.Equal(t, hashing.Sum(data), *first.Hash)
}

func TestIngestRemovesFileWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.db.CreateEvidenceErr = errors.New("insert failed")

	_, err := f.svc.Ingest(ctx, f.scope, Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceAfter, Description: "done",
		File: &File{Name: "after.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
	})
	require.Error(t, err)
	assert.Equal(t, types.KindStorage, types.KindOf(err))
	assert.Empty(t, f.objects.Paths())
	assert.Empty(t, f.queue.tasks)
	assert.Empty(t, f.db.AuditLogs())
}

func TestIngestCompensationFailureKeepsInsertError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	insertErr := errors.New("insert failed")
	f.db.CreateEvidenceErr = insertErr
	f.objects.DeleteErr = errors.New("delete failed")

	_, err := f.svc.Ingest(ctx, f.scope, Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceAfter, Description: "done",
		File: &File{Name: "after.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
	})
	require.ErrorIs(t, err, insertErr)
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("é", 2001)

	tests := []struct {
		name string
		in   Upload
		msg  string
	}{
		{name: "bad type", in: Upload{JobID: f.job.ID, EvidenceType: "selfie", Description: "x"}, msg: "Invalid evidence type"},
		{name: "blank description", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "  "}, msg: "Description is required"},
		{name: "long description", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: long}, msg: "at most 2000"},
		{name: "bad gps", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x", GPS: &geo.Reading{Latitude: 120}}, msg: "latitude"},
		{name: "infinite gps accuracy", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x", GPS: &geo.Reading{Latitude: 51.5, Longitude: -0.1, Accuracy: utils.Float64Ptr(math.Inf(1))}}, msg: "accuracy"},
		{name: "empty file", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x", File: &File{Name: "a.jpg"}}, msg: "empty"},
		{name: "too large", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x", File: &File{Name: "a.jpg", Data: make([]byte, 2<<20)}}, msg: "upload limit"},
		{name: "signature without approval", in: Upload{JobID: f.job.ID, EvidenceType: types.EvidenceApproval, Description: "x", ClientSignature: utils.StringPtr("sig")}, msg: "requires client approval"},
		{name: "missing job id", in: Upload{EvidenceType: types.EvidenceBefore, Description: "x"}, msg: "Job ID is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(context.Background(), f.scope, tt.in)
			require.Error(t, err)
			assert.Equal(t, types.KindValidation, types.KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Empty(t, f.objects.Paths())
		})
	}
}

func TestIngestUnknownOrForeignJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), types.NewScope("someone-else"), Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x",
		File: &File{Name: "a.jpg", Data: []byte("a")},
	})
	require.ErrorIs(t, err, types.ErrJobNotFound)
	assert.Equal(t, "Job not found", types.PublicMessage(err))
	assert.Empty(t, f.objects.Paths())
}

func TestIngestTextOnlyEvidenceIsNotAnchored(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Ingest(context.Background(), f.scope, Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceDefect, Description: "Cracked tile noted by client",
		GPS: &geo.Reading{Latitude: 51.5, Longitude: -0.12},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Hash)
	assert.Nil(t, res.Path)
	assert.Empty(t, f.queue.tasks)
	assert.Empty(t, f.objects.Paths())
}

func TestIngestUploadConflict(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	f.svc.nonce = func() string { return "fixed" }

	up := Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x",
		File: &File{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
	}
	_, err := f.svc.Ingest(context.Background(), f.scope, up)
	require.NoError(t, err)

	up.File = &File{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("b")}
	_, err = f.svc.Ingest(context.Background(), f.scope, up)
	require.ErrorIs(t, err, types.ErrUploadConflict)
}

func TestIngestStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.objects.PutErr = errors.New("bucket unreachable")

	_, err := f.svc.Ingest(context.Background(), f.scope, Upload{
		JobID: f.job.ID, EvidenceType: types.EvidenceBefore, Description: "x",
		File: &File{Name: "a.jpg", Data: []byte("a")},
	})
	require.Error(t, err)
	assert.Equal(t, types.KindStorage, types.KindOf(err))
	assert.Equal(t, "Failed to upload file", types.PublicMessage(err))
}

func TestStatusRecomputesAndCaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, et := range []types.EvidenceType{types.EvidenceBefore, types.EvidenceAfter} {
		_, err := f.svc.Ingest(ctx, f.scope, Upload{JobID: f.job.ID, EvidenceType: et, Description: string(et)})
		require.NoError(t, err)
	}

	// Simulate a stale cached value.
	require.NoError(t, f.db.UpdateProtectionStatus(ctx, f.scope, f.job.ID, 0))

	job, factors, err := f.svc.Status(ctx, f.scope, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, 44, factors.Total)
	assert.Equal(t, 44, job.ProtectionStatus)

	cached, err := f.db.Job(ctx, f.scope, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, 44, cached.ProtectionStatus)
}
