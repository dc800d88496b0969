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

const reportTableName = "tradeproof.reports"

var reportColumns = utils.StructTagValues(types.Report{})

type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func (r *ReportRepository) Report(ctx context.Context, scope types.Scope, reportID string) (*types.Report, error) {

	if _, err := uuid.Parse(reportID); err != nil {
		return nil, types.ErrReportNotFound
	}

	where, err := ownedBy(scope, sq.Eq{"id": reportID})
	if err != nil {
		return nil, err
	}

	query, args, err := psql().Select(reportColumns...).From(reportTableName).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate report query: %w", err)
	}

	var report = new(types.Report)
	err = pgxscan.Get(ctx, r.pool, report, query, args...)
	if err != nil && !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("failed to fetch report: %w", err)
	}

	if err != nil {
		return nil, types.ErrReportNotFound
	}

	return report, nil

}

func (r *ReportRepository) ReportsByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.Report, error) {

	where, err := ownedBy(scope, sq.Eq{"job_id": jobID})
	if err != nil {
		return nil, err
	}

	query, args, err := psql().Select(reportColumns...).From(reportTableName).
		Where(where).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reports query: %w", err)
	}

	var reports = make([]*types.Report, 0)
	err = pgxscan.Select(ctx, r.pool, &reports, query, args...)
	return reports, utils.ErrorWrapOrNil(err, "failed to fetch reports for job")

}

func (r *ReportRepository) CreateReport(ctx context.Context, scope types.Scope, report *types.Report) error {

	if err := scope.Validate(); err != nil {
		return err
	}

	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.UserID = scope.UserID
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql().Insert(reportTableName).SetMap(utils.StructToMap(report)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert report query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create report")

}

func (r *ReportRepository) ReportFileSizeTotal(ctx context.Context, scope types.Scope) (int64, error) {
	return sumColumn(ctx, r.pool, scope, reportTableName, "file_size")
}
