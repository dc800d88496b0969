package anchor

import (
	"context"
	"fmt"

	"tradeproof/internal/hashing"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	StatusAnchored        = "anchored"
	StatusAlreadyAnchored = "already_anchored"
)

type EvidenceStore interface {
	Evidence(ctx context.Context, scope types.Scope, evidenceID string) (*types.EvidenceItem, error)
	SetBlockchainTimestamp(ctx context.Context, scope types.Scope, evidenceID, token string) (bool, error)
}

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, scope types.Scope, entry *types.AuditLog) error
}

type Result struct {
	EvidenceID string `json:"evidence_id"`
	Status     string `json:"status"`
	Token      string `json:"blockchain_timestamp"`
	VerifyURL  string `json:"verify_url"`
}

type Service struct {
	evidence EvidenceStore
	audit    AuditWriter
	client   Client
	logger   logrus.FieldLogger
}

func NewService(evidence EvidenceStore, audit AuditWriter, client Client, logger logrus.FieldLogger) *Service {
	return &Service{
		evidence: evidence,
		audit:    audit,
		client:   client,
		logger:   logger,
	}
}

// Anchor obtains and stores a proof for one evidence item. It is safe to
// call repeatedly: an item that already holds a proof is returned as is, and
// if two calls race only the first write is kept.
func (s *Service) Anchor(ctx context.Context, scope types.Scope, evidenceID string) (*Result, error) {

	item, err := s.evidence.Evidence(ctx, scope, evidenceID)
	if err != nil {
		return nil, err
	}

	if item.IsAnchored() {
		return s.result(item.ID, StatusAlreadyAnchored, *item.BlockchainTimestamp), nil
	}

	if item.FileHash == nil || *item.FileHash == "" {
		return nil, types.Validationf("Evidence has no file to timestamp")
	}

	token, err := s.client.Submit(ctx, *item.FileHash)
	if err != nil {
		return nil, err
	}

	written, err := s.evidence.SetBlockchainTimestamp(ctx, scope, item.ID, token)
	if err != nil {
		return nil, fmt.Errorf("store timestamp proof: %w", err)
	}

	if !written {
		current, err := s.evidence.Evidence(ctx, scope, item.ID)
		if err != nil {
			return nil, err
		}
		if !current.IsAnchored() {
			return nil, fmt.Errorf("timestamp proof for evidence %s was not stored", item.ID)
		}
		return s.result(item.ID, StatusAlreadyAnchored, *current.BlockchainTimestamp), nil
	}

	entry := &types.AuditLog{
		Action:       types.AuditEvidenceAnchored,
		ResourceType: "evidence",
		ResourceID:   item.ID,
		Details: map[string]any{
			"hash": *item.FileHash,
		},
	}
	if err := s.audit.CreateAuditLog(ctx, scope, entry); err != nil {
		s.logger.WithError(err).WithField("evidence_id", item.ID).Warn("failed to write anchor audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"evidence_id": item.ID,
		"hash":        hashing.Short(*item.FileHash),
	}).Info("evidence anchored")

	return s.result(item.ID, StatusAnchored, token), nil

}

func (s *Service) result(evidenceID, status, token string) *Result {
	return &Result{
		EvidenceID: evidenceID,
		Status:     status,
		Token:      token,
		VerifyURL:  VerifyURL,
	}
}
