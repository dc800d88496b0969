package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ReportType string

const (
	ReportTypePDF  ReportType = "pdf"
	ReportTypeHTML ReportType = "html"
	ReportTypeXLSX ReportType = "xlsx"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportTypePDF, ReportTypeHTML, ReportTypeXLSX:
		return true
	}
	return false
}

func (t ReportType) ContentType() string {
	switch t {
	case ReportTypeHTML:
		return "text/html; charset=utf-8"
	case ReportTypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/pdf"
	}
}

const ReportStatusCompleted = "completed"

type Report struct {
	ID         string         `db:"id" json:"id"`
	JobID      string         `db:"job_id" json:"job_id"`
	UserID     string         `db:"user_id" json:"user_id"`
	Filename   string         `db:"filename" json:"filename"`
	FilePath   string         `db:"file_path" json:"file_path"`
	FileSize   int64          `db:"file_size" json:"file_size"`
	ReportType ReportType     `db:"report_type" json:"report_type"`
	Status     string         `db:"status" json:"status"`
	Metadata   ReportMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ReportMetadata is a copy of the job state at generation time. Field names
// are part of the persisted format.
type ReportMetadata struct {
	EvidenceCount    int       `json:"evidence_count"`
	ProtectionStatus int       `json:"protection_status"`
	ClientName       string    `json:"client_name"`
	JobType          JobType   `json:"job_type"`
	GeneratedAt      time.Time `json:"generated_at"`
}

func (m ReportMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *ReportMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = ReportMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported report metadata source %T", src)
	}
}
