// Package evidence is the ingest pipeline: validate, hash, store, record,
// then hand the hash to the anchor queue.
package evidence

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"tradeproof/internal/anchor"
	"tradeproof/internal/geo"
	"tradeproof/internal/hashing"
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

type EvidenceStore interface {
	CreateEvidence(ctx context.Context, scope types.Scope, item *types.EvidenceItem) error
	EvidenceByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error)
}

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, scope types.Scope, entry *types.AuditLog) error
}

type Limits struct {
	MaxUploadBytes       int64
	MaxDescriptionLength int
	BatchConcurrency     int
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload is one evidence submission. File is nil for text-only evidence.
type Upload struct {
	JobID           string
	EvidenceType    types.EvidenceType
	Description     string
	File            *File
	GPS             *geo.Reading
	ClientApproval  *bool
	ClientSignature *string
	DeviceTimestamp *time.Time
	Meta            types.RequestMeta
}

type Result struct {
	EvidenceID string  `json:"evidence_id"`
	Hash       *string `json:"hash"`
	Path       *string `json:"file_path"`
	Score      int     `json:"protection_status"`
}

type Service struct {
	jobs     JobStore
	evidence EvidenceStore
	audit    AuditWriter
	objects  storage.ObjectStore
	queue    anchor.Enqueuer
	limits   Limits
	logger   logrus.FieldLogger
	now      func() time.Time
	nonce    func() string
}

func NewService(jobs JobStore, evidence EvidenceStore, audit AuditWriter, objects storage.ObjectStore, queue anchor.Enqueuer, limits Limits, logger logrus.FieldLogger) *Service {
	if limits.BatchConcurrency < 1 {
		limits.BatchConcurrency = 1
	}

	return &Service{
		jobs:     jobs,
		evidence: evidence,
		audit:    audit,
		objects:  objects,
		queue:    queue,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
		nonce:    func() string { return utils.NanoIDSize(10) },
	}
}

// Ingest runs the full pipeline for a single upload. Validation happens
// before any side effect; once the file is stored, a failed insert removes
// it again so no object is left without a record.
func (s *Service) Ingest(ctx context.Context, scope types.Scope, in Upload) (*Result, error) {

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if err := s.validate(&in); err != nil {
		return nil, err
	}

	job, err := s.jobs.Job(ctx, scope, in.JobID)
	if err != nil {
		return nil, err
	}

	serverTime := s.now().UTC()
	item := &types.EvidenceItem{
		JobID:           job.ID,
		EvidenceType:    in.EvidenceType,
		Description:     in.Description,
		ClientApproval:  in.ClientApproval,
		ClientSignature: in.ClientSignature,
		DeviceTimestamp: in.DeviceTimestamp,
		ServerTimestamp: serverTime,
	}

	if in.GPS != nil {
		item.GPSLatitude = utils.Float64Ptr(in.GPS.Latitude)
		item.GPSLongitude = utils.Float64Ptr(in.GPS.Longitude)
		item.GPSAccuracy = in.GPS.Accuracy
	}

	logger := s.logger.WithFields(logrus.Fields{
		"user_id": scope.UserID,
		"job_id":  job.ID,
	})

	if in.File != nil {
		// Hash the exact buffer handed to storage.
		data := in.File.Data
		hash := hashing.Sum(data)

		path := storage.EvidencePath(scope.UserID, job.ID, serverTime, s.nonce(), in.File.Name)
		stored, err := s.objects.Put(ctx, path, data, storage.PutOptions{
			ContentType: in.File.ContentType,
			NoClobber:   true,
		})
		if err != nil {
			return nil, uploadError(err)
		}

		item.FilePath = &stored
		item.FileHash = &hash
		item.FileName = utils.StringPtr(in.File.Name)
		item.MimeType = utils.StringPtr(in.File.ContentType)
		item.FileSizeBytes = int64(len(data))
	}

	if err := s.evidence.CreateEvidence(ctx, scope, item); err != nil {
		if item.HasFile() {
			if delErr := s.objects.Delete(context.WithoutCancel(ctx), *item.FilePath); delErr != nil {
				logger.WithError(delErr).WithField("path", *item.FilePath).Error("failed to remove uploaded file after insert failure")
			}
		}
		return nil, types.StorageError("Failed to save evidence record", err)
	}

	logger = logger.WithField("evidence_id", item.ID)

	status := s.refreshScore(ctx, scope, job, logger)
	s.writeAudit(ctx, scope, item, in.Meta, logger)

	if item.FileHash != nil {
		s.queue.Enqueue(anchor.Task{EvidenceID: item.ID, UserID: scope.UserID})
	}

	logger.WithField("has_file", item.HasFile()).Info("evidence ingested")

	return &Result{
		EvidenceID: item.ID,
		Hash:       item.FileHash,
		Path:       item.FilePath,
		Score:      status,
	}, nil

}

// List returns a job's evidence, oldest first.
func (s *Service) List(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error) {
	if _, err := s.jobs.Job(ctx, scope, jobID); err != nil {
		return nil, err
	}
	return s.evidence.EvidenceByJob(ctx, scope, jobID)
}

// Status recomputes a job's protection score from its evidence and caches it.
func (s *Service) Status(ctx context.Context, scope types.Scope, jobID string) (*types.Job, score.Factors, error) {
	job, err := s.jobs.Job(ctx, scope, jobID)
	if err != nil {
		return nil, score.Factors{}, err
	}

	items, err := s.evidence.EvidenceByJob(ctx, scope, jobID)
	if err != nil {
		return nil, score.Factors{}, err
	}

	factors := score.Breakdown(items)
	if factors.Total != job.ProtectionStatus {
		if err := s.jobs.UpdateProtectionStatus(ctx, scope, job.ID, factors.Total); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Warn("failed to cache protection status")
		} else {
			job.ProtectionStatus = factors.Total
		}
	}

	return job, factors, nil
}

func (s *Service) validate(in *Upload) error {

	in.JobID = strings.TrimSpace(in.JobID)
	if in.JobID == "" {
		return types.Validationf("Job ID is required")
	}

	if !in.EvidenceType.Valid() {
		return types.Validationf("Invalid evidence type %q", in.EvidenceType)
	}

	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return types.Validationf("Description is required")
	}

	if s.limits.MaxDescriptionLength > 0 && utf8.RuneCountInString(in.Description) > s.limits.MaxDescriptionLength {
		return types.Validationf("Description must be at most %d characters", s.limits.MaxDescriptionLength)
	}

	if in.GPS != nil {
		if err := in.GPS.Validate(); err != nil {
			return err
		}
	}

	if in.ClientSignature != nil && *in.ClientSignature != "" && (in.ClientApproval == nil || !*in.ClientApproval) {
		return types.Validationf("A client signature requires client approval")
	}

	if in.File != nil {
		if len(in.File.Data) == 0 {
			return types.Validationf("Uploaded file is empty")
		}
		if s.limits.MaxUploadBytes > 0 && int64(len(in.File.Data)) > s.limits.MaxUploadBytes {
			return types.Validationf("File exceeds the %d MB upload limit", s.limits.MaxUploadBytes>>20)
		}
		if strings.TrimSpace(in.File.Name) == "" {
			in.File.Name = "evidence"
		}
		if in.File.ContentType == "" || in.File.ContentType == "application/octet-stream" {
			in.File.ContentType = http.DetectContentType(in.File.Data)
		}
	}

	return nil

}

func (s *Service) refreshScore(ctx context.Context, scope types.Scope, job *types.Job, logger logrus.FieldLogger) int {
	items, err := s.evidence.EvidenceByJob(ctx, scope, job.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to load evidence for protection status")
		return job.ProtectionStatus
	}

	status := score.Calculate(items)
	if err := s.jobs.UpdateProtectionStatus(ctx, scope, job.ID, status); err != nil {
		logger.WithError(err).Warn("failed to cache protection status")
	}
	return status
}

func (s *Service) writeAudit(ctx context.Context, scope types.Scope, item *types.EvidenceItem, meta types.RequestMeta, logger logrus.FieldLogger) {
	entry := &types.AuditLog{
		Action:       types.AuditEvidenceUploaded,
		ResourceType: "evidence",
		ResourceID:   item.ID,
		Details: map[string]any{
			"evidence_id": item.ID,
			"type":        item.EvidenceType,
			"hash":        utils.PtrString(item.FileHash),
			"has_gps":     item.HasGPS(),
			"file_size":   item.FileSizeBytes,
		},
		IPAddress: utils.NonEmptyPtr(meta.IPAddress),
		UserAgent: utils.NonEmptyPtr(meta.UserAgent),
	}

	if err := s.audit.CreateAuditLog(ctx, scope, entry); err != nil {
		logger.WithError(err).Warn("failed to write evidence audit entry")
	}
}

func uploadError(err error) error {
	if types.KindOf(err) == types.KindConflict {
		return err
	}
	return types.StorageError("Failed to upload file", err)
}
