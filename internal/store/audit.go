package store

import (
	"context"
	"fmt"
	"time"

	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditLogTableName = "tradeproof.audit_logs"

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) CreateAuditLog(ctx context.Context, scope types.Scope, entry *types.AuditLog) error {

	if err := scope.Validate(); err != nil {
		return err
	}

	entry.ID = uuid.NewString()
	entry.UserID = scope.UserID
	entry.CreatedAt = time.Now().UTC()
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}

	query, args, err := psql().Insert(auditLogTableName).SetMap(utils.StructToMap(entry)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert audit log query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create audit log")

}
