// Package quota reports how much object storage a user occupies and frees
// space by removing their oldest evidence files.
package quota

import (
	"context"
	"fmt"
	"time"

	"tradeproof/internal/score"
	"tradeproof/internal/storage"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

const MaxCleanupBatch = 500

type Store interface {
	EvidenceFileSizeTotal(ctx context.Context, scope types.Scope) (int64, error)
	ReportFileSizeTotal(ctx context.Context, scope types.Scope) (int64, error)
	OldestEvidenceWithFiles(ctx context.Context, scope types.Scope, createdBefore time.Time, limit int) ([]*types.EvidenceItem, error)
	DeleteEvidence(ctx context.Context, scope types.Scope, evidenceIDs []string) (int64, error)
	EvidenceByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error)
	UpdateProtectionStatus(ctx context.Context, scope types.Scope, jobID string, status int) error
}

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, scope types.Scope, entry *types.AuditLog) error
}

type Usage struct {
	EvidenceBytes   int64   `json:"evidence_bytes"`
	ReportBytes     int64   `json:"report_bytes"`
	TotalSizeBytes  int64   `json:"total_size_bytes"`
	LimitBytes      int64   `json:"limit_bytes"`
	RemainingBytes  int64   `json:"remaining_bytes"`
	UsagePercentage float64 `json:"usage_percentage"`
	IsOverLimit     bool    `json:"is_over_limit"`
}

// NewUsage derives the usage figures from raw byte sums.
func NewUsage(evidenceBytes, reportBytes, limit int64) Usage {
	total := evidenceBytes + reportBytes
	u := Usage{
		EvidenceBytes:  evidenceBytes,
		ReportBytes:    reportBytes,
		TotalSizeBytes: total,
		LimitBytes:     limit,
		RemainingBytes: max(limit-total, 0),
		IsOverLimit:    total > limit,
	}

	switch {
	case limit > 0:
		u.UsagePercentage = 100 * float64(total) / float64(limit)
	case total > 0:
		u.UsagePercentage = 100
	}

	return u
}

type CleanupResult struct {
	DeletedCount int64    `json:"deleted_count"`
	FreedBytes   int64    `json:"freed_bytes"`
	DeletedIDs   []string `json:"deleted_ids"`
	Usage        *Usage   `json:"usage,omitempty"`
}

type Tracker struct {
	store   Store
	audit   AuditWriter
	objects storage.ObjectStore
	limits  LimitSource
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewTracker(store Store, audit AuditWriter, objects storage.ObjectStore, limits LimitSource, logger logrus.FieldLogger) *Tracker {
	return &Tracker{
		store:   store,
		audit:   audit,
		objects: objects,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

// Usage sums the caller's evidence and report sizes against their limit.
func (t *Tracker) Usage(ctx context.Context, scope types.Scope) (*Usage, error) {

	evidenceBytes, err := t.store.EvidenceFileSizeTotal(ctx, scope)
	if err != nil {
		return nil, err
	}

	reportBytes, err := t.store.ReportFileSizeTotal(ctx, scope)
	if err != nil {
		return nil, err
	}

	u := NewUsage(evidenceBytes, reportBytes, t.limits.Limit(ctx, scope))
	return &u, nil

}

// Cleanup deletes up to limit of the caller's oldest file-bearing evidence
// items created more than olderThan ago. Objects go first and a storage
// failure aborts before any row is touched. Score and usage refreshes
// afterwards are best-effort.
func (t *Tracker) Cleanup(ctx context.Context, scope types.Scope, olderThan time.Duration, limit int) (*CleanupResult, error) {

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if olderThan < 0 {
		return nil, types.Validationf("Age threshold must not be negative")
	}
	if limit < 1 || limit > MaxCleanupBatch {
		return nil, types.Validationf("Limit must be between 1 and %d", MaxCleanupBatch)
	}

	candidates, err := t.store.OldestEvidenceWithFiles(ctx, scope, t.now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("select cleanup candidates: %w", err)
	}

	result := &CleanupResult{DeletedIDs: make([]string, 0, len(candidates))}
	if len(candidates) == 0 {
		result.Usage = t.refreshUsage(ctx, scope)
		return result, nil
	}

	paths := make([]string, 0, len(candidates))
	jobs := make(map[string]struct{})
	for _, item := range candidates {
		paths = append(paths, *item.FilePath)
		result.DeletedIDs = append(result.DeletedIDs, item.ID)
		result.FreedBytes += item.FileSizeBytes
		jobs[item.JobID] = struct{}{}
	}

	if err := t.objects.Delete(ctx, paths...); err != nil {
		return nil, types.StorageError("Failed to delete stored files", err)
	}

	deleted, err := t.store.DeleteEvidence(ctx, scope, result.DeletedIDs)
	if err != nil {
		return nil, fmt.Errorf("delete evidence rows: %w", err)
	}
	result.DeletedCount = deleted

	logger := t.logger.WithField("user_id", scope.UserID)

	entry := &types.AuditLog{
		Action:       types.AuditEvidenceDeleted,
		ResourceType: "evidence",
		ResourceID:   "storage-cleanup",
		Details: map[string]any{
			"evidence_ids": result.DeletedIDs,
			"freed_bytes":  result.FreedBytes,
			"older_than":   olderThan.String(),
		},
	}
	if err := t.audit.CreateAuditLog(ctx, scope, entry); err != nil {
		logger.WithError(err).Warn("failed to write cleanup audit entry")
	}

	for jobID := range jobs {
		t.rescore(ctx, scope, jobID, logger)
	}

	result.Usage = t.refreshUsage(ctx, scope)

	logger.WithFields(logrus.Fields{
		"deleted":     deleted,
		"freed_bytes": result.FreedBytes,
	}).Info("storage cleanup complete")

	return result, nil

}

func (t *Tracker) rescore(ctx context.Context, scope types.Scope, jobID string, logger logrus.FieldLogger) {
	items, err := t.store.EvidenceByJob(ctx, scope, jobID)
	if err != nil {
		logger.WithError(err).WithField("job_id", jobID).Warn("failed to reload evidence after cleanup")
		return
	}

	if err := t.store.UpdateProtectionStatus(ctx, scope, jobID, score.Calculate(items)); err != nil {
		logger.WithError(err).WithField("job_id", jobID).Warn("failed to cache protection status after cleanup")
	}
}

func (t *Tracker) refreshUsage(ctx context.Context, scope types.Scope) *Usage {
	u, err := t.Usage(ctx, scope)
	if err != nil {
		t.logger.WithError(err).WithField("user_id", scope.UserID).Warn("failed to recompute storage usage")
		return nil
	}
	return u
}
