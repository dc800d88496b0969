package types

import "time"

type EvidenceType string

const (
	EvidenceBefore   EvidenceType = "before"
	EvidenceProgress EvidenceType = "progress"
	EvidenceAfter    EvidenceType = "after"
	EvidenceDefect   EvidenceType = "defect"
	EvidenceApproval EvidenceType = "approval"
	EvidenceContract EvidenceType = "contract"
	EvidenceReceipt  EvidenceType = "receipt"
)

// EvidenceTypes lists every evidence type in report section order.
var EvidenceTypes = []EvidenceType{
	EvidenceBefore,
	EvidenceProgress,
	EvidenceAfter,
	EvidenceDefect,
	EvidenceApproval,
	EvidenceContract,
	EvidenceReceipt,
}

var evidenceTypeLabels = map[EvidenceType]string{
	EvidenceBefore:   "Before Work",
	EvidenceProgress: "Work in Progress",
	EvidenceAfter:    "Completed Work",
	EvidenceDefect:   "Defects & Issues",
	EvidenceApproval: "Client Approvals",
	EvidenceContract: "Contracts & Agreements",
	EvidenceReceipt:  "Receipts & Invoices",
}

func (t EvidenceType) Valid() bool {
	_, ok := evidenceTypeLabels[t]
	return ok
}

func (t EvidenceType) Label() string {
	if l, ok := evidenceTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

type EvidenceItem struct {
	ID                  string       `db:"id" json:"id"`
	JobID               string       `db:"job_id" json:"job_id"`
	UserID              string       `db:"user_id" json:"user_id"`
	EvidenceType        EvidenceType `db:"evidence_type" json:"evidence_type"`
	Description         string       `db:"description" json:"description"`
	FilePath            *string      `db:"file_path" json:"file_path"`
	FileName            *string      `db:"file_name" json:"file_name"`
	MimeType            *string      `db:"mime_type" json:"mime_type"`
	FileSizeBytes       int64        `db:"file_size_bytes" json:"file_size_bytes"`
	FileHash            *string      `db:"file_hash" json:"file_hash"`
	BlockchainTimestamp *string      `db:"blockchain_timestamp" json:"blockchain_timestamp"`
	AnchoredAt          *time.Time   `db:"anchored_at" json:"anchored_at"`
	GPSLatitude         *float64     `db:"gps_latitude" json:"gps_latitude"`
	GPSLongitude        *float64     `db:"gps_longitude" json:"gps_longitude"`
	GPSAccuracy         *float64     `db:"gps_accuracy" json:"gps_accuracy"`
	ClientApproval      *bool        `db:"client_approval" json:"client_approval"`
	ClientSignature     *string      `db:"client_signature" json:"client_signature"`
	DeviceTimestamp     *time.Time   `db:"device_timestamp" json:"device_timestamp"`
	ServerTimestamp     time.Time    `db:"server_timestamp" json:"server_timestamp"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
}

func (e *EvidenceItem) HasFile() bool {
	return e.FilePath != nil && *e.FilePath != ""
}

func (e *EvidenceItem) HasGPS() bool {
	return e.GPSLatitude != nil && e.GPSLongitude != nil
}

func (e *EvidenceItem) IsAnchored() bool {
	return e.BlockchainTimestamp != nil && *e.BlockchainTimestamp != ""
}

func (e *EvidenceItem) IsSignedApproval() bool {
	return e.ClientApproval != nil && *e.ClientApproval && e.ClientSignature != nil && *e.ClientSignature != ""
}

// PendingAnchor is an evidence item whose hash has not been timestamped yet.
type PendingAnchor struct {
	EvidenceID string `db:"id"`
	UserID     string `db:"user_id"`
	FileHash   string `db:"file_hash"`
}
