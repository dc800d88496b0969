package store

import (
	"context"
	"fmt"
	"time"

	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const evidenceTableName = "tradeproof.evidence"

var evidenceColumns = utils.StructTagValues(types.EvidenceItem{})

type EvidenceRepository struct {
	pool *pgxpool.Pool
}

func NewEvidenceRepository(pool *pgxpool.Pool) *EvidenceRepository {
	return &EvidenceRepository{pool: pool}
}

func (r *EvidenceRepository) Evidence(ctx context.Context, scope types.Scope, evidenceID string) (*types.EvidenceItem, error) {
	if _, err := uuid.Parse(evidenceID); err != nil {
		return nil, types.ErrEvidenceNotFound
	}

	where, err := ownedBy(scope, sq.Eq{"id": evidenceID})
	if err != nil {
		return nil, err
	}

	query, args, err := psql().Select(evidenceColumns...).From(evidenceTableName).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate evidence query: %w", err)
	}

	var item = new(types.EvidenceItem)
	err = pgxscan.Get(ctx, r.pool, item, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("failed to fetch evidence: %w", err)
	}

	return item, nil
}

func evidenceByJobQuery(scope types.Scope, jobID string) (string, []any, error) {
	where, err := ownedBy(scope, sq.Eq{"job_id": jobID})
	if err != nil {
		return "", nil, err
	}

	return psql().Select(evidenceColumns...).From(evidenceTableName).
		Where(where).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
}

// EvidenceByJob returns a job's evidence, oldest first.
func (r *EvidenceRepository) EvidenceByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error) {
	query, args, err := evidenceByJobQuery(scope, jobID)
	if err != nil {
		return nil, err
	}

	var items = make([]*types.EvidenceItem, 0)
	err = pgxscan.Select(ctx, r.pool, &items, query, args...)
	return items, utils.ErrorWrapOrNil(err, "failed to fetch evidence for job")
}

// CreateEvidence inserts a new evidence row. ID and timestamps are assigned
// here; ServerTimestamp is authoritative and never taken from the client.
func (r *EvidenceRepository) CreateEvidence(ctx context.Context, scope types.Scope, item *types.EvidenceItem) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.UserID = scope.UserID
	if item.ServerTimestamp.IsZero() {
		item.ServerTimestamp = time.Now().UTC()
	}
	item.CreatedAt = item.ServerTimestamp

	query, args, err := psql().Insert(evidenceTableName).SetMap(utils.StructToMap(item)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert evidence query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create evidence")
}

func setTimestampUpdate(scope types.Scope, evidenceID, token string, at time.Time) (string, []any, error) {
	where, err := ownedBy(scope, sq.Eq{"id": evidenceID, "blockchain_timestamp": nil})
	if err != nil {
		return "", nil, err
	}

	return psql().Update(evidenceTableName).
		Set("blockchain_timestamp", token).
		Set("anchored_at", at).
		Where(where).
		ToSql()
}

// SetBlockchainTimestamp writes the proof token only while the column is
// still NULL. It reports whether this call performed the write.
func (r *EvidenceRepository) SetBlockchainTimestamp(ctx context.Context, scope types.Scope, evidenceID, token string) (bool, error) {
	query, args, err := setTimestampUpdate(scope, evidenceID, token, time.Now().UTC())
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to set blockchain timestamp for evidence %s: %w", evidenceID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// UnanchoredEvidence lists file-bearing evidence still waiting for a proof,
// across all owners. It feeds the background sweeper, which has no caller
// identity; each returned row carries its owner so the follow-up write is
// scoped again.
func (r *EvidenceRepository) UnanchoredEvidence(ctx context.Context, createdBefore time.Time, limit int) ([]types.PendingAnchor, error) {
	query, args, err := psql().Select("id", "user_id", "file_hash").From(evidenceTableName).
		Where(sq.Eq{"blockchain_timestamp": nil}).
		Where(sq.NotEq{"file_hash": nil}).
		Where(sq.Lt{"created_at": createdBefore}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate unanchored evidence query: %w", err)
	}

	var pending []types.PendingAnchor
	err = pgxscan.Select(ctx, r.pool, &pending, query, args...)
	return pending, utils.ErrorWrapOrNil(err, "failed to fetch unanchored evidence")
}

func oldestWithFilesQuery(scope types.Scope, createdBefore time.Time, limit int) (string, []any, error) {
	where, err := ownedBy(scope, sq.NotEq{"file_path": nil}, sq.Lt{"created_at": createdBefore})
	if err != nil {
		return "", nil, err
	}

	return psql().Select(evidenceColumns...).From(evidenceTableName).
		Where(where).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
}

// OldestEvidenceWithFiles selects cleanup candidates, oldest first.
func (r *EvidenceRepository) OldestEvidenceWithFiles(ctx context.Context, scope types.Scope, createdBefore time.Time, limit int) ([]*types.EvidenceItem, error) {
	query, args, err := oldestWithFilesQuery(scope, createdBefore, limit)
	if err != nil {
		return nil, err
	}

	var items = make([]*types.EvidenceItem, 0)
	err = pgxscan.Select(ctx, r.pool, &items, query, args...)
	return items, utils.ErrorWrapOrNil(err, "failed to fetch cleanup candidates")
}

func (r *EvidenceRepository) DeleteEvidence(ctx context.Context, scope types.Scope, evidenceIDs []string) (int64, error) {
	if len(evidenceIDs) == 0 {
		return 0, nil
	}

	where, err := ownedBy(scope, sq.Eq{"id": evidenceIDs})
	if err != nil {
		return 0, err
	}

	query, args, err := psql().Delete(evidenceTableName).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate delete evidence query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete evidence: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *EvidenceRepository) EvidenceFileSizeTotal(ctx context.Context, scope types.Scope) (int64, error) {
	return sumColumn(ctx, r.pool, scope, evidenceTableName, "file_size_bytes")
}

func sumColumn(ctx context.Context, pool *pgxpool.Pool, scope types.Scope, table, column string) (int64, error) {
	where, err := ownedBy(scope)
	if err != nil {
		return 0, err
	}

	query, args, err := psql().Select(fmt.Sprintf("COALESCE(SUM(%s), 0)::bigint", column)).From(table).
		Where(where).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate size query: %w", err)
	}

	var total int64
	if err := pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum %s.%s: %w", table, column, err)
	}

	return total, nil
}
