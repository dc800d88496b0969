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

const jobTableName = "tradeproof.jobs"

var jobColumns = utils.StructTagValues(types.Job{})

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func jobQuery(scope types.Scope, jobID string) (string, []any, error) {
	where, err := ownedBy(scope, sq.Eq{"id": jobID})
	if err != nil {
		return "", nil, err
	}

	return psql().Select(jobColumns...).From(jobTableName).
		Where(where).
		Limit(1).
		ToSql()
}

// Job returns types.ErrJobNotFound both for missing jobs and for jobs owned
// by someone else.
func (r *JobRepository) Job(ctx context.Context, scope types.Scope, jobID string) (*types.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, types.ErrJobNotFound
	}

	query, args, err := jobQuery(scope, jobID)
	if err != nil {
		return nil, err
	}

	var job = new(types.Job)
	err = pgxscan.Get(ctx, r.pool, job, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}

	return job, nil
}

func (r *JobRepository) JobsByUser(ctx context.Context, scope types.Scope) ([]*types.Job, error) {
	where, err := ownedBy(scope)
	if err != nil {
		return nil, err
	}

	query, args, err := psql().Select(jobColumns...).From(jobTableName).
		Where(where).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate jobs query: %w", err)
	}

	var jobs = make([]*types.Job, 0)
	err = pgxscan.Select(ctx, r.pool, &jobs, query, args...)
	return jobs, utils.ErrorWrapOrNil(err, "failed to fetch jobs")
}

func (r *JobRepository) CreateJob(ctx context.Context, scope types.Scope, job *types.Job) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.UserID = scope.UserID
	job.CreatedAt = now
	job.UpdatedAt = now

	query, args, err := psql().Insert(jobTableName).SetMap(utils.StructToMap(job)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert job query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create job")
}

func protectionStatusUpdate(scope types.Scope, jobID string, status int, at time.Time) (string, []any, error) {
	where, err := ownedBy(scope, sq.Eq{"id": jobID})
	if err != nil {
		return "", nil, err
	}

	return psql().Update(jobTableName).
		Set("protection_status", status).
		Set("updated_at", at).
		Where(where).
		ToSql()
}

// UpdateProtectionStatus stores the cached protection score for a job.
func (r *JobRepository) UpdateProtectionStatus(ctx context.Context, scope types.Scope, jobID string, status int) error {
	query, args, err := protectionStatusUpdate(scope, jobID, status, time.Now().UTC())
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update protection status for job %s: %w", jobID, err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrJobNotFound
	}

	return nil
}
