package report

import (
	"context"
	"fmt"
	"time"

	"tradeproof/internal/profile"
	"tradeproof/internal/score"
	"tradeproof/internal/storage"
	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

type JobStore interface {
	Job(ctx context.Context, scope types.Scope, jobID string) (*types.Job, error)
	UpdateProtectionStatus(ctx context.Context, scope types.Scope, jobID string, status int) error
}

type EvidenceLister interface {
	EvidenceByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error)
}

type ReportStore interface {
	Report(ctx context.Context, scope types.Scope, reportID string) (*types.Report, error)
	CreateReport(ctx context.Context, scope types.Scope, report *types.Report) error
}

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, scope types.Scope, entry *types.AuditLog) error
}

type Generated struct {
	Report *types.Report `json:"report"`
	Pages  int           `json:"pages,omitempty"`
}

type Service struct {
	jobs      JobStore
	evidence  EvidenceLister
	reports   ReportStore
	audit     AuditWriter
	files     storage.ObjectStore
	documents storage.ObjectStore
	profiles  profile.Source
	measure   Measurer
	brand     string
	logger    logrus.FieldLogger
	now       func() time.Time
}

type ServiceConfig struct {
	Jobs      JobStore
	Evidence  EvidenceLister
	Reports   ReportStore
	Audit     AuditWriter
	Files     storage.ObjectStore
	Documents storage.ObjectStore
	Profiles  profile.Source
	Measurer  Measurer
	Brand     string
	Logger    logrus.FieldLogger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Measurer == nil {
		cfg.Measurer = NewFontMeasurer()
	}

	return &Service{
		jobs:      cfg.Jobs,
		evidence:  cfg.Evidence,
		reports:   cfg.Reports,
		audit:     cfg.Audit,
		files:     cfg.Files,
		documents: cfg.Documents,
		profiles:  cfg.Profiles,
		measure:   cfg.Measurer,
		brand:     cfg.Brand,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// LoadImage reads an evidence file from the evidence bucket.
func (s *Service) LoadImage(ctx context.Context, item *types.EvidenceItem) ([]byte, error) {
	if !item.HasFile() {
		return nil, types.ErrObjectNotFound
	}
	return s.files.Get(ctx, *item.FilePath)
}

// Generate builds, stores and records a report. Nothing is persisted unless
// every step succeeds; a failed insert removes the uploaded document.
func (s *Service) Generate(ctx context.Context, scope types.Scope, jobID string, format types.ReportType, meta types.RequestMeta) (*Generated, error) {

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if format == "" {
		format = types.ReportTypePDF
	}
	if !format.Valid() {
		return nil, types.Validationf("Invalid report format %q", format)
	}

	job, err := s.jobs.Job(ctx, scope, jobID)
	if err != nil {
		return nil, err
	}

	items, err := s.evidence.EvidenceByJob(ctx, scope, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load evidence for report: %w", err)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"user_id": scope.UserID,
		"job_id":  job.ID,
		"format":  format,
	})

	generated := s.now().UTC().Truncate(time.Second)
	out := &Generated{}

	var body []byte
	switch format {
	case types.ReportTypeXLSX:
		body, err = BuildRegister(job, items, generated, s.brand)
		if err != nil {
			return nil, err
		}
	default:
		doc, err := s.assemble(ctx, scope, job, items, generated, logger)
		if err != nil {
			return nil, err
		}
		out.Pages = len(doc.Pages)

		var renderer Renderer = PDFRenderer{}
		if format == types.ReportTypeHTML {
			renderer = HTMLRenderer{}
		}
		body, err = renderer.Render(doc)
		if err != nil {
			return nil, err
		}
	}

	filename := fmt.Sprintf("%s-%s.%s", ReportID(job.ID), generated.Format("20060102-150405"), format)
	path, err := s.documents.Put(ctx, storage.ReportPath(scope.UserID, filename), body, storage.PutOptions{
		ContentType: format.ContentType(),
		NoClobber:   true,
	})
	if err != nil {
		if types.KindOf(err) == types.KindConflict {
			return nil, err
		}
		return nil, types.StorageError("Failed to upload report", err)
	}

	status := score.Calculate(items)
	report := &types.Report{
		JobID:      job.ID,
		Filename:   filename,
		FilePath:   path,
		FileSize:   int64(len(body)),
		ReportType: format,
		Status:     types.ReportStatusCompleted,
		Metadata: types.ReportMetadata{
			EvidenceCount:    len(items),
			ProtectionStatus: status,
			ClientName:       job.ClientName,
			JobType:          job.JobType,
			GeneratedAt:      generated,
		},
		CreatedAt: generated,
	}

	if err := s.reports.CreateReport(ctx, scope, report); err != nil {
		if delErr := s.documents.Delete(context.WithoutCancel(ctx), path); delErr != nil {
			logger.WithError(delErr).WithField("path", path).Error("failed to remove report after insert failure")
		}
		return nil, types.StorageError("Failed to save report record", err)
	}

	if status != job.ProtectionStatus {
		if err := s.jobs.UpdateProtectionStatus(ctx, scope, job.ID, status); err != nil {
			logger.WithError(err).Warn("failed to cache protection status")
		}
	}

	entry := &types.AuditLog{
		Action:       types.AuditReportGenerated,
		ResourceType: "report",
		ResourceID:   report.ID,
		Details: map[string]any{
			"job_id":         job.ID,
			"report_type":    format,
			"evidence_count": len(items),
			"file_size":      report.FileSize,
		},
		IPAddress: utils.NonEmptyPtr(meta.IPAddress),
		UserAgent: utils.NonEmptyPtr(meta.UserAgent),
	}
	if err := s.audit.CreateAuditLog(ctx, scope, entry); err != nil {
		logger.WithError(err).Warn("failed to write report audit entry")
	}

	logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"bytes":     report.FileSize,
	}).Info("report generated")

	out.Report = report
	return out, nil

}

func (s *Service) assemble(ctx context.Context, scope types.Scope, job *types.Job, items []*types.EvidenceItem, generated time.Time, logger logrus.FieldLogger) (*Document, error) {
	issuer := types.IssuerProfile{BusinessName: s.brand}
	if s.profiles != nil {
		p, err := s.profiles.Profile(ctx, scope)
		if err != nil {
			logger.WithError(err).Warn("issuer profile unavailable, using defaults")
		} else {
			issuer = p
		}
	}

	assembler := NewAssembler(s.measure, s, s.brand, logger)
	return assembler.Assemble(ctx, Input{
		Job:         job,
		Evidence:    items,
		Issuer:      issuer,
		GeneratedAt: generated,
	})
}

// Register builds the evidence register spreadsheet without storing it.
func (s *Service) Register(ctx context.Context, scope types.Scope, jobID string) ([]byte, string, error) {
	job, err := s.jobs.Job(ctx, scope, jobID)
	if err != nil {
		return nil, "", err
	}

	items, err := s.evidence.EvidenceByJob(ctx, scope, job.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load evidence for register: %w", err)
	}

	generated := s.now().UTC().Truncate(time.Second)
	body, err := BuildRegister(job, items, generated, s.brand)
	if err != nil {
		return nil, "", err
	}

	return body, fmt.Sprintf("%s-register.xlsx", ReportID(job.ID)), nil
}

// Download returns a stored report and its bytes.
func (s *Service) Download(ctx context.Context, scope types.Scope, reportID string) (*types.Report, []byte, error) {
	report, err := s.reports.Report(ctx, scope, reportID)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.documents.Get(ctx, report.FilePath)
	if err != nil {
		if types.KindOf(err) == types.KindNotFound {
			return nil, nil, types.ErrReportNotFound
		}
		return nil, nil, types.StorageError("Failed to download report", err)
	}

	return report, body, nil
}
