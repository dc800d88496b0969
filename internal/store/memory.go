package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"tradeproof/pkg/types"

	"github.com/google/uuid"
)

// Memory implements every repository in process. It backs tests and the
// database-less development mode, and applies the same scope rules as the
// Postgres repositories.
type Memory struct {
	mu       sync.RWMutex
	jobs     map[string]types.Job
	evidence map[string]types.EvidenceItem
	reports  map[string]types.Report
	audit    []types.AuditLog

	// Failure injection
	CreateEvidenceErr error
	CreateReportErr   error
	CreateAuditErr    error
	UpdateStatusErr   error
}

func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]types.Job),
		evidence: make(map[string]types.EvidenceItem),
		reports:  make(map[string]types.Report),
	}
}

func (m *Memory) Job(_ context.Context, scope types.Scope, jobID string) (*types.Job, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok || job.UserID != scope.UserID {
		return nil, types.ErrJobNotFound
	}
	return &job, nil
}

func (m *Memory) JobsByUser(_ context.Context, scope types.Scope) ([]*types.Job, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*types.Job, 0)
	for _, job := range m.jobs {
		if job.UserID == scope.UserID {
			job := job
			jobs = append(jobs, &job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (m *Memory) CreateJob(_ context.Context, scope types.Scope, job *types.Job) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UserID = scope.UserID
	job.CreatedAt = now
	job.UpdatedAt = now

	m.mu.Lock()
	m.jobs[job.ID] = *job
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateProtectionStatus(_ context.Context, scope types.Scope, jobID string, status int) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.UserID != scope.UserID {
		return types.ErrJobNotFound
	}
	job.ProtectionStatus = status
	job.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) Evidence(_ context.Context, scope types.Scope, evidenceID string) (*types.EvidenceItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.evidence[evidenceID]
	if !ok || item.UserID != scope.UserID {
		return nil, types.ErrEvidenceNotFound
	}
	return &item, nil
}

func (m *Memory) EvidenceByJob(_ context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterEvidence(func(e types.EvidenceItem) bool {
		return e.UserID == scope.UserID && e.JobID == jobID
	}), nil
}

func (m *Memory) CreateEvidence(_ context.Context, scope types.Scope, item *types.EvidenceItem) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if m.CreateEvidenceErr != nil {
		return m.CreateEvidenceErr
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.UserID = scope.UserID
	if item.ServerTimestamp.IsZero() {
		item.ServerTimestamp = time.Now().UTC()
	}
	item.CreatedAt = item.ServerTimestamp

	m.mu.Lock()
	m.evidence[item.ID] = *item
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetBlockchainTimestamp(_ context.Context, scope types.Scope, evidenceID, token string) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.evidence[evidenceID]
	if !ok || item.UserID != scope.UserID || item.BlockchainTimestamp != nil {
		return false, nil
	}

	now := time.Now().UTC()
	item.BlockchainTimestamp = &token
	item.AnchoredAt = &now
	m.evidence[evidenceID] = item
	return true, nil
}

func (m *Memory) UnanchoredEvidence(_ context.Context, createdBefore time.Time, limit int) ([]types.PendingAnchor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.filterEvidence(func(e types.EvidenceItem) bool {
		return e.BlockchainTimestamp == nil && e.FileHash != nil && e.CreatedAt.Before(createdBefore)
	})

	pending := make([]types.PendingAnchor, 0, len(items))
	for _, item := range items {
		if len(pending) == limit {
			break
		}
		pending = append(pending, types.PendingAnchor{EvidenceID: item.ID, UserID: item.UserID, FileHash: *item.FileHash})
	}
	return pending, nil
}

func (m *Memory) OldestEvidenceWithFiles(_ context.Context, scope types.Scope, createdBefore time.Time, limit int) ([]*types.EvidenceItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.filterEvidence(func(e types.EvidenceItem) bool {
		return e.UserID == scope.UserID && e.HasFile() && e.CreatedAt.Before(createdBefore)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) DeleteEvidence(_ context.Context, scope types.Scope, evidenceIDs []string) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, item := range m.evidence {
		if item.UserID == scope.UserID && slices.Contains(evidenceIDs, id) {
			delete(m.evidence, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) EvidenceFileSizeTotal(_ context.Context, scope types.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, item := range m.evidence {
		if item.UserID == scope.UserID {
			total += item.FileSizeBytes
		}
	}
	return total, nil
}

func (m *Memory) Report(_ context.Context, scope types.Scope, reportID string) (*types.Report, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	report, ok := m.reports[reportID]
	if !ok || report.UserID != scope.UserID {
		return nil, types.ErrReportNotFound
	}
	return &report, nil
}

func (m *Memory) ReportsByJob(_ context.Context, scope types.Scope, jobID string) ([]*types.Report, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := make([]*types.Report, 0)
	for _, report := range m.reports {
		if report.UserID == scope.UserID && report.JobID == jobID {
			report := report
			reports = append(reports, &report)
		}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].CreatedAt.After(reports[j].CreatedAt) })
	return reports, nil
}

func (m *Memory) CreateReport(_ context.Context, scope types.Scope, report *types.Report) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if m.CreateReportErr != nil {
		return m.CreateReportErr
	}

	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.UserID = scope.UserID
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.reports[report.ID] = *report
	m.mu.Unlock()
	return nil
}

func (m *Memory) ReportFileSizeTotal(_ context.Context, scope types.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, report := range m.reports {
		if report.UserID == scope.UserID {
			total += report.FileSize
		}
	}
	return total, nil
}

func (m *Memory) CreateAuditLog(_ context.Context, scope types.Scope, entry *types.AuditLog) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if m.CreateAuditErr != nil {
		return m.CreateAuditErr
	}

	entry.ID = uuid.NewString()
	entry.UserID = scope.UserID
	entry.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	m.audit = append(m.audit, *entry)
	m.mu.Unlock()
	return nil
}

// AuditLogs returns a copy of every recorded audit entry.
func (m *Memory) AuditLogs() []types.AuditLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.audit)
}

// filterEvidence returns matching items ordered oldest first. Callers hold
// the lock.
func (m *Memory) filterEvidence(match func(types.EvidenceItem) bool) []*types.EvidenceItem {
	items := make([]*types.EvidenceItem, 0)
	for _, item := range m.evidence {
		if match(item) {
			item := item
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}
