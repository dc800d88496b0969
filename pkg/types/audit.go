package types

import "time"

const (
	AuditEvidenceUploaded = "evidence_uploaded"
	AuditEvidenceAnchored = "evidence_anchored"
	AuditEvidenceDeleted  = "evidence_deleted"
	AuditReportGenerated  = "report_generated"
)

type AuditLog struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	Action       string         `db:"action"`
	ResourceType string         `db:"resource_type"`
	ResourceID   string         `db:"resource_id"`
	Details      map[string]any `db:"details"`
	IPAddress    *string        `db:"ip_address"`
	UserAgent    *string        `db:"user_agent"`
	CreatedAt    time.Time      `db:"created_at"`
}
