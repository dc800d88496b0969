package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"tradeproof/pkg/types"
)

type generateRequest struct {
	JobID  string `json:"job_id"`
	Format string `json:"format"`
}

func (s *Service) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.failure(w, r, types.Validationf("Request body must be JSON"))
		return
	}

	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		s.failure(w, r, types.Validationf("Job ID is required"))
		return
	}

	generated, err := s.reports.Generate(ctx, scope, req.JobID, types.ReportType(strings.ToLower(strings.TrimSpace(req.Format))), requestMeta(r))
	if err != nil {
		s.failure(w, r, err)
		return
	}

	fields := map[string]any{
		"report_id":  generated.Report.ID,
		"filename":   generated.Report.Filename,
		"file_path":  generated.Report.FilePath,
		"file_size":  generated.Report.FileSize,
		"format":     generated.Report.ReportType,
		"pages":      generated.Pages,
		"metadata":   generated.Report.Metadata,
		"created_at": generated.Report.CreatedAt,
	}

	if s.tokens != nil {
		token, err := s.tokens.Issue(scope, generated.Report.ID)
		if err != nil {
			s.logger.WithError(err).WithField("report_id", generated.Report.ID).Warn("failed to issue download token")
		} else {
			fields["download_url"] = s.tokens.URL(token)
			fields["download_expires_in"] = int(s.tokens.TTL().Seconds())
		}
	}

	s.success(w, fields)
}

func (s *Service) handleEvidenceRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	body, filename, err := s.reports.Register(ctx, scope, r.PathValue("jobID"))
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.writeFile(w, types.ReportTypeXLSX.ContentType(), filename, body)
}

func (s *Service) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.tokens == nil {
		s.failure(w, r, types.ErrUnauthorized)
		return
	}

	scope, reportID, err := s.tokens.Open(r.URL.Query().Get("token"))
	if err != nil {
		s.failure(w, r, err)
		return
	}

	report, body, err := s.reports.Download(ctx, scope, reportID)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.writeFile(w, report.ReportType.ContentType(), report.Filename, body)
}
