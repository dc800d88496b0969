package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/evidence"
	"tradeproof/internal/geo"
	"tradeproof/internal/score"
	"tradeproof/internal/utils"
	"tradeproof/pkg/types"
)

const multipartMemory = 32 << 20

type uploadForm struct {
	JobID           string  `form:"job_id"`
	EvidenceType    string  `form:"evidence_type"`
	Description     string  `form:"description"`
	GPSLatitude     *string `form:"gps_latitude"`
	GPSLongitude    *string `form:"gps_longitude"`
	GPSAccuracy     *string `form:"gps_accuracy"`
	ClientApproval  *string `form:"client_approval"`
	ClientSignature *string `form:"client_signature"`
	DeviceTimestamp *string `form:"device_timestamp"`
}

func (f *uploadForm) gps() (*geo.Reading, error) {
	lat := strings.TrimSpace(utils.PtrString(f.GPSLatitude))
	lng := strings.TrimSpace(utils.PtrString(f.GPSLongitude))
	if lat == "" && lng == "" {
		return nil, nil
	}
	if lat == "" || lng == "" {
		return nil, types.Validationf("GPS latitude and longitude must be sent together")
	}

	var reading geo.Reading
	var err error
	if reading.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return nil, types.Validationf("GPS latitude is not a number")
	}
	if reading.Longitude, err = strconv.ParseFloat(lng, 64); err != nil {
		return nil, types.Validationf("GPS longitude is not a number")
	}

	if acc := strings.TrimSpace(utils.PtrString(f.GPSAccuracy)); acc != "" {
		v, err := strconv.ParseFloat(acc, 64)
		if err != nil {
			return nil, types.Validationf("GPS accuracy is not a number")
		}
		reading.Accuracy = &v
	}

	return &reading, nil
}

func (f *uploadForm) approval() (*bool, error) {
	raw := strings.TrimSpace(utils.PtrString(f.ClientApproval))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, types.Validationf("client_approval must be true or false")
	}
	return &v, nil
}

func (f *uploadForm) deviceTime() (*time.Time, error) {
	raw := strings.TrimSpace(utils.PtrString(f.DeviceTimestamp))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, types.Validationf("device_timestamp must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

// parseUploadForm reads a multipart body of at most limit bytes. Callers must
// remove r.MultipartForm once done; the middleware hands handlers a copy of
// the request, so net/http never cleans up its temp files.
func (s *Service) parseUploadForm(w http.ResponseWriter, r *http.Request, limit int64) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, types.Validationf("Request must be multipart/form-data within the upload limit")
	}

	f := new(uploadForm)
	if err := decoder.Decode(f, r.MultipartForm.Value); err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, types.Validationf("Invalid form fields")
	}
	return f, nil
}

func readFile(header *multipart.FileHeader) (evidence.File, error) {
	file, err := header.Open()
	if err != nil {
		return evidence.File{}, types.Validationf("Failed to read uploaded file %s", header.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return evidence.File{}, types.Validationf("Failed to read uploaded file %s", header.Filename)
	}

	return evidence.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Service) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	f, err := s.parseUploadForm(w, r, s.config.MaxBodyBytes)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := evidence.Upload{
		JobID:           f.JobID,
		EvidenceType:    types.EvidenceType(strings.TrimSpace(f.EvidenceType)),
		Description:     f.Description,
		ClientSignature: utils.NonEmptyPtr(strings.TrimSpace(utils.PtrString(f.ClientSignature))),
		Meta:            requestMeta(r),
	}

	if in.GPS, err = f.gps(); err != nil {
		s.failure(w, r, err)
		return
	}
	if in.ClientApproval, err = f.approval(); err != nil {
		s.failure(w, r, err)
		return
	}
	if in.DeviceTimestamp, err = f.deviceTime(); err != nil {
		s.failure(w, r, err)
		return
	}

	if headers := r.MultipartForm.File["file"]; len(headers) > 0 {
		file, err := readFile(headers[0])
		if err != nil {
			s.failure(w, r, err)
			return
		}
		in.File = &file
	}

	result, err := s.evidence.Ingest(ctx, scope, in)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.success(w, map[string]any{
		"evidence_id":       result.EvidenceID,
		"hash":              result.Hash,
		"file_path":         result.Path,
		"protection_status": result.Score,
		"message":           "Evidence uploaded successfully",
	})
}

func (s *Service) handleUploadEvidenceBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	f, err := s.parseUploadForm(w, r, s.config.MaxBatchBodyBytes)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.failure(w, r, types.Validationf("At least one file is required"))
		return
	}
	if len(headers) > s.config.MaxBatchFiles {
		s.failure(w, r, types.Validationf("A batch may contain at most %d files", s.config.MaxBatchFiles))
		return
	}

	in := evidence.BatchUpload{
		JobID:        f.JobID,
		EvidenceType: types.EvidenceType(strings.TrimSpace(f.EvidenceType)),
		Description:  f.Description,
		Meta:         requestMeta(r),
	}
	if in.GPS, err = f.gps(); err != nil {
		s.failure(w, r, err)
		return
	}
	if in.DeviceTimestamp, err = f.deviceTime(); err != nil {
		s.failure(w, r, err)
		return
	}

	for _, header := range headers {
		file, err := readFile(header)
		if err != nil {
			s.failure(w, r, err)
			return
		}
		in.Files = append(in.Files, file)
	}

	result, err := s.evidence.IngestBatch(ctx, scope, in)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	// Partial failure is still a 200; success reports whether every file
	// made it.
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   result.AllSucceeded(),
		"results":   result.Results,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}

func (s *Service) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	jobID := r.PathValue("jobID")

	items, err := s.evidence.List(ctx, scope, jobID)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.success(w, map[string]any{
		"job_id":   jobID,
		"evidence": items,
		"count":    len(items),
	})
}

func (s *Service) handleProtectionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	job, factors, err := s.evidence.Status(ctx, scope, r.PathValue("jobID"))
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.success(w, map[string]any{
		"job_id":            job.ID,
		"protection_status": factors.Total,
		"label":             score.Label(factors.Total),
		"breakdown":         factors,
	})
}

func (s *Service) handleTimestampEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	result, err := s.anchors.Anchor(ctx, scope, r.PathValue("evidenceID"))
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.success(w, map[string]any{
		"evidence_id":          result.EvidenceID,
		"status":               result.Status,
		"blockchain_timestamp": result.Token,
		"verify_url":           result.VerifyURL,
		"verification":         anchor.VerificationProcedure,
	})
}
