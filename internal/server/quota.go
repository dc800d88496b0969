package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"tradeproof/pkg/types"
)

const (
	defaultCleanupAgeDays = 90
	defaultCleanupLimit   = 50
)

type cleanupRequest struct {
	OlderThanDays *int `json:"older_than_days"`
	Limit         *int `json:"limit"`
}

func (s *Service) handleStorageQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	usage, err := s.quota.Usage(ctx, scope)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.success(w, map[string]any{"quota": usage})
}

func (s *Service) handleCleanupStorage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.scopeFromContext(ctx)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	var req cleanupRequest
	err = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		s.failure(w, r, types.Validationf("Request body must be JSON"))
		return
	}

	days := defaultCleanupAgeDays
	if req.OlderThanDays != nil {
		days = *req.OlderThanDays
	}
	limit := defaultCleanupLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	if days < 0 {
		s.failure(w, r, types.Validationf("older_than_days must not be negative"))
		return
	}

	result, err := s.quota.Cleanup(ctx, scope, time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.success(w, map[string]any{
		"deleted_count": result.DeletedCount,
		"freed_bytes":   result.FreedBytes,
		"deleted_ids":   result.DeletedIDs,
		"quota":         result.Usage,
	})
}
