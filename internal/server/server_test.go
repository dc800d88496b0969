package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/evidence"
	"tradeproof/internal/quota"
	"tradeproof/internal/report"
	"tradeproof/internal/score"
	"tradeproof/pkg/types"

	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "0f5a3c1e-0000-4000-8000-0000000000aa"

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", types.ErrUnauthorized
}

type fakeEvidence struct {
	EvidenceService
	upload  *evidence.Upload
	batch   *evidence.BatchUpload
	listErr error
	listed  string
}

func (f *fakeEvidence) Ingest(_ context.Context, scope types.Scope, in evidence.Upload) (*evidence.Result, error) {
	f.upload = &in
	hash := "abc123"
	return &evidence.Result{EvidenceID: "ev-1", Hash: &hash, Score: 22}, nil
}

func (f *fakeEvidence) IngestBatch(_ context.Context, scope types.Scope, in evidence.BatchUpload) (*evidence.BatchResult, error) {
	f.batch = &in
	return &evidence.BatchResult{
		Results: []evidence.FileResult{
			{Filename: "a.jpg", Success: true, EvidenceID: "ev-a"},
			{Filename: "b.jpg", Success: false, Error: "Uploaded file is empty"},
		},
		Succeeded: 1,
		Failed:    1,
	}, nil
}

func (f *fakeEvidence) List(_ context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error) {
	f.listed = jobID
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []*types.EvidenceItem{{ID: "ev-1", JobID: jobID}}, nil
}

func (f *fakeEvidence) Status(_ context.Context, scope types.Scope, jobID string) (*types.Job, score.Factors, error) {
	return &types.Job{ID: jobID}, score.Factors{Total: 44}, nil
}

type fakeAnchors struct {
	AnchorService
	err error
}

func (f *fakeAnchors) Anchor(_ context.Context, scope types.Scope, evidenceID string) (*anchor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &anchor.Result{EvidenceID: evidenceID, Status: anchor.StatusAnchored, Token: "ots:AAAA", VerifyURL: anchor.VerifyURL}, nil
}

type fakeReports struct {
	ReportService
	reports map[string]*types.Report
	bodies  map[string][]byte
}

func (f *fakeReports) Generate(_ context.Context, scope types.Scope, jobID string, format types.ReportType, meta types.RequestMeta) (*report.Generated, error) {
	if format == "" {
		format = types.ReportTypePDF
	}
	rpt := &types.Report{
		ID:         "rep-1",
		JobID:      jobID,
		UserID:     scope.UserID,
		Filename:   "RPT-ABCDEF12-20240501-090000.pdf",
		ReportType: format,
	}
	f.reports[rpt.ID] = rpt
	f.bodies[rpt.ID] = []byte("%PDF-1.3 test")
	return &report.Generated{Report: rpt, Pages: 3}, nil
}

func (f *fakeReports) Register(_ context.Context, scope types.Scope, jobID string) ([]byte, string, error) {
	return []byte("xlsx"), "RPT-ABCDEF12-register.xlsx", nil
}

func (f *fakeReports) Download(_ context.Context, scope types.Scope, reportID string) (*types.Report, []byte, error) {
	rpt, ok := f.reports[reportID]
	if !ok || rpt.UserID != scope.UserID {
		return nil, nil, types.ErrReportNotFound
	}
	return rpt, f.bodies[reportID], nil
}

type fakeQuota struct {
	QuotaService
	olderThan time.Duration
	limit     int
}

func (f *fakeQuota) Usage(_ context.Context, scope types.Scope) (*quota.Usage, error) {
	u := quota.NewUsage(600, 100, 1000)
	return &u, nil
}

func (f *fakeQuota) Cleanup(_ context.Context, scope types.Scope, olderThan time.Duration, limit int) (*quota.CleanupResult, error) {
	f.olderThan = olderThan
	f.limit = limit
	return &quota.CleanupResult{DeletedCount: 2, FreedBytes: 300, DeletedIDs: []string{"a", "b"}}, nil
}

type harness struct {
	handler  http.Handler
	evidence *fakeEvidence
	anchors  *fakeAnchors
	reports  *fakeReports
	quota    *fakeQuota
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, Config{})
}

func newHarnessWithConfig(t *testing.T, config Config) *harness {
	t.Helper()

	logger, _ := test.NewNullLogger()
	h := &harness{
		evidence: &fakeEvidence{},
		anchors:  &fakeAnchors{},
		reports:  &fakeReports{reports: map[string]*types.Report{}, bodies: map[string][]byte{}},
		quota:    &fakeQuota{},
	}

	tokens := NewDownloadTokens(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32), 15*time.Minute)

	srv := New(config, logger, Deps{
		Verifier: staticVerifier{"good-token": testUserID},
		Tokens:   tokens,
		Evidence: h.evidence,
		Anchors:  h.anchors,
		Reports:  h.reports,
		Quota:    h.quota,
	})
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer good-token")
	return req
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		part, err := mw.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestPreflight(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{apiPrefix + "/evidence-upload", apiPrefix + "/anything", "/"} {
		rec, _ := h.do(t, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "authorization")
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAuthFailuresUseErrorEnvelope(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"unknown token", "Bearer bad-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, apiPrefix+"/storage-quota", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, body := h.do(t, req)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "Unauthorized", body["error"])
			assert.NotContains(t, body, "success")
		})
	}
}

func TestUploadEvidence(t *testing.T) {
	h := newHarness(t)

	body, contentType := multipartBody(t, map[string]string{
		"job_id":           "job-1",
		"evidence_type":    "before",
		"description":      "Existing kitchen",
		"gps_latitude":     "51.5",
		"gps_longitude":    "-0.12",
		"gps_accuracy":     "8",
		"client_approval":  "true",
		"client_signature": "data:image/png;base64,AAAA",
		"device_timestamp": "2024-05-01T08:59:00+01:00",
	}, "file", map[string][]byte{"kitchen.jpg": []byte("jpeg bytes")})

	req := authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence-upload", body))
	req.Header.Set("Content-Type", contentType)

	rec, resp := h.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "ev-1", resp["evidence_id"])
	assert.Equal(t, "abc123", resp["hash"])
	assert.EqualValues(t, 22, resp["protection_status"])

	in := h.evidence.upload
	require.NotNil(t, in)
	assert.Equal(t, "job-1", in.JobID)
	assert.Equal(t, types.EvidenceBefore, in.EvidenceType)
	require.NotNil(t, in.GPS)
	assert.Equal(t, 51.5, in.GPS.Latitude)
	assert.Equal(t, -0.12, in.GPS.Longitude)
	require.NotNil(t, in.GPS.Accuracy)
	assert.Equal(t, 8.0, *in.GPS.Accuracy)
	require.NotNil(t, in.ClientApproval)
	assert.True(t, *in.ClientApproval)
	require.NotNil(t, in.DeviceTimestamp)
	assert.Equal(t, time.Date(2024, 5, 1, 7, 59, 0, 0, time.UTC), *in.DeviceTimestamp)
	require.NotNil(t, in.File)
	assert.Equal(t, "kitchen.jpg", in.File.Name)
	assert.Equal(t, []byte("jpeg bytes"), in.File.Data)
}

func TestUploadEvidenceRejectsHalfGPS(t *testing.T) {
	h := newHarness(t)

	body, contentType := multipartBody(t, map[string]string{
		"job_id":        "job-1",
		"evidence_type": "before",
		"description":   "x",
		"gps_latitude":  "51.5",
	}, "file", nil)

	req := authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence-upload", body))
	req.Header.Set("Content-Type", contentType)

	rec, resp := h.do(t, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "GPS latitude and longitude must be sent together", resp["error"])
	assert.Nil(t, h.evidence.upload)
}

func TestUploadEvidenceBatchPartialFailure(t *testing.T) {
	h := newHarness(t)

	body, contentType := multipartBody(t, map[string]string{
		"job_id":        "job-1",
		"evidence_type": "progress",
		"description":   "Rough-in",
	}, "files", map[string][]byte{"a.jpg": []byte("a"), "b.jpg": []byte("b")})

	req := authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence-upload-batch", body))
	req.Header.Set("Content-Type", contentType)

	rec, resp := h.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.EqualValues(t, 1, resp["succeeded"])
	assert.EqualValues(t, 1, resp["failed"])
	require.NotNil(t, h.evidence.batch)
	assert.Len(t, h.evidence.batch.Files, 2)
}

func TestUploadEvidenceRemovesSpilledParts(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	h := newHarness(t)

	large := bytes.Repeat([]byte{0xff}, multipartMemory+1<<20)
	body, contentType := multipartBody(t, map[string]string{
		"job_id":        "job-1",
		"evidence_type": "before",
		"description":   "Wide shot of the loft",
	}, "file", map[string][]byte{"loft.jpg": large})

	req := authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence-upload", body))
	req.Header.Set("Content-Type", contentType)

	rec, _ := h.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.evidence.upload)
	assert.Len(t, h.evidence.upload.File.Data, len(large))

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestUploadEvidenceBatchBodyCap(t *testing.T) {
	h := newHarnessWithConfig(t, Config{MaxBodyBytes: 64 << 10, MaxBatchBodyBytes: 4 << 10})

	body, contentType := multipartBody(t, map[string]string{
		"job_id":        "job-1",
		"evidence_type": "progress",
		"description":   "Rough-in",
	}, "files", map[string][]byte{
		"a.jpg": bytes.Repeat([]byte("a"), 3<<10),
		"b.jpg": bytes.Repeat([]byte("b"), 3<<10),
	})

	req := authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence-upload-batch", body))
	req.Header.Set("Content-Type", contentType)

	rec, resp := h.do(t, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Request must be multipart/form-data within the upload limit", resp["error"])
	assert.Nil(t, h.evidence.batch)
}

func TestListEvidence(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodGet, apiPrefix+"/jobs/job-9/evidence", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-9", h.evidence.listed)
	assert.EqualValues(t, 1, resp["count"])

	h.evidence.listErr = types.ErrJobNotFound
	rec, resp = h.do(t, authed(httptest.NewRequest(http.MethodGet, apiPrefix+"/jobs/job-9/evidence", nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Job not found", resp["error"])
}

func TestProtectionStatus(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodGet, apiPrefix+"/jobs/job-3/protection-status", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-3", resp["job_id"])
	assert.EqualValues(t, 44, resp["protection_status"])
	assert.Equal(t, score.Label(44), resp["label"])
}

func TestTimestampEvidence(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence/ev-7/timestamp", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ev-7", resp["evidence_id"])
	assert.Equal(t, anchor.StatusAnchored, resp["status"])

	h.anchors.err = types.Unavailable("Timestamp service unavailable", nil)
	rec, resp = h.do(t, authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/evidence/ev-7/timestamp", nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Timestamp service unavailable", resp["error"])
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := newHarness(t)
	h.evidence.listErr = assert.AnError

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodGet, apiPrefix+"/jobs/job-9/evidence", nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", resp["error"])
}

func TestGenerateAndDownloadReport(t *testing.T) {
	h := newHarness(t)

	req := authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/generate-report", strings.NewReader(`{"job_id":"job-1","format":"pdf"}`)))
	req.Header.Set("Content-Type", "application/json")

	rec, resp := h.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rep-1", resp["report_id"])
	assert.EqualValues(t, 3, resp["pages"])

	link, ok := resp["download_url"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(link, apiPrefix+"/reports/download?token="))

	// No bearer header needed.
	rec, _ = h.do(t, httptest.NewRequest(http.MethodGet, link, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "RPT-ABCDEF12-20240501-090000.pdf")
	assert.Equal(t, "%PDF-1.3 test", rec.Body.String())
}

func TestDownloadRejectsBadToken(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, httptest.NewRequest(http.MethodGet, apiPrefix+"/reports/download?token=forged", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Download link is invalid or expired", resp["error"])
}

func TestGenerateReportRequiresJobID(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/generate-report", strings.NewReader(`{"format":"pdf"}`))))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Job ID is required", resp["error"])
}

func TestEvidenceRegister(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, authed(httptest.NewRequest(http.MethodGet, apiPrefix+"/jobs/job-1/evidence-register", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ReportTypeXLSX.ContentType(), rec.Header().Get("Content-Type"))
	assert.Equal(t, "xlsx", rec.Body.String())
}

func TestStorageQuota(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodGet, apiPrefix+"/storage-quota", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	q, ok := resp["quota"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 700, q["total_size_bytes"])
	assert.EqualValues(t, 300, q["remaining_bytes"])
	assert.EqualValues(t, 70, q["usage_percentage"])
	assert.Equal(t, false, q["is_over_limit"])
}

func TestCleanupStorage(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/cleanup-storage", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, resp["deleted_count"])
	assert.Equal(t, defaultCleanupAgeDays*24*time.Hour, h.quota.olderThan)
	assert.Equal(t, defaultCleanupLimit, h.quota.limit)

	rec, _ = h.do(t, authed(httptest.NewRequest(http.MethodPost, apiPrefix+"/cleanup-storage", strings.NewReader(`{"older_than_days":30,"limit":5}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30*24*time.Hour, h.quota.olderThan)
	assert.Equal(t, 5, h.quota.limit)
}
