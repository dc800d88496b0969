package main

import (
	"context"
	"fmt"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/db"
	"tradeproof/internal/evidence"
	"tradeproof/internal/profile"
	"tradeproof/internal/quota"
	"tradeproof/internal/report"
	"tradeproof/internal/storage"
	"tradeproof/internal/store"
	"tradeproof/pkg/types"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type jobStore interface {
	Job(ctx context.Context, scope types.Scope, jobID string) (*types.Job, error)
	JobsByUser(ctx context.Context, scope types.Scope) ([]*types.Job, error)
	CreateJob(ctx context.Context, scope types.Scope, job *types.Job) error
	UpdateProtectionStatus(ctx context.Context, scope types.Scope, jobID string, status int) error
}

type evidenceStore interface {
	Evidence(ctx context.Context, scope types.Scope, evidenceID string) (*types.EvidenceItem, error)
	EvidenceByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error)
	CreateEvidence(ctx context.Context, scope types.Scope, item *types.EvidenceItem) error
	SetBlockchainTimestamp(ctx context.Context, scope types.Scope, evidenceID, token string) (bool, error)
	UnanchoredEvidence(ctx context.Context, createdBefore time.Time, limit int) ([]types.PendingAnchor, error)
	OldestEvidenceWithFiles(ctx context.Context, scope types.Scope, createdBefore time.Time, limit int) ([]*types.EvidenceItem, error)
	DeleteEvidence(ctx context.Context, scope types.Scope, evidenceIDs []string) (int64, error)
	EvidenceFileSizeTotal(ctx context.Context, scope types.Scope) (int64, error)
}

type reportStore interface {
	Report(ctx context.Context, scope types.Scope, reportID string) (*types.Report, error)
	ReportsByJob(ctx context.Context, scope types.Scope, jobID string) ([]*types.Report, error)
	CreateReport(ctx context.Context, scope types.Scope, report *types.Report) error
	ReportFileSizeTotal(ctx context.Context, scope types.Scope) (int64, error)
}

type auditStore interface {
	CreateAuditLog(ctx context.Context, scope types.Scope, entry *types.AuditLog) error
}

// quotaStore joins the repositories the quota tracker reads and writes.
type quotaStore struct {
	jobStore
	evidenceStore
	reportStore
}

// backend holds the repositories and object stores every command shares.
type backend struct {
	config *types.Config
	logger *logrus.Logger

	pool      *pgxpool.Pool
	jobs      jobStore
	evidence  evidenceStore
	reports   reportStore
	audit     auditStore
	files     storage.ObjectStore
	documents storage.ObjectStore
	profiles  profile.Source

	awsConfig *aws.Config
	closers   []func()
}

func openBackend(ctx context.Context, config *types.Config, logger *logrus.Logger) (*backend, error) {
	b := &backend{config: config, logger: logger}

	if err := b.openDatabase(ctx); err != nil {
		b.Close()
		return nil, err
	}

	if err := b.openStorage(ctx); err != nil {
		b.Close()
		return nil, err
	}

	if err := b.openProfiles(ctx); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

func (b *backend) openDatabase(ctx context.Context) error {
	if b.config.DatabaseURL == "" {
		b.logger.Warn("DATABASE_URL not set, using the in-memory store; nothing will persist")
		mem := store.NewMemory()
		b.jobs, b.evidence, b.reports, b.audit = mem, mem, mem, mem
		return nil
	}

	pool, err := db.Connect(ctx, b.config)
	if err != nil {
		return err
	}
	b.pool = pool
	b.closers = append(b.closers, pool.Close)

	b.jobs = store.NewJobRepository(pool)
	b.evidence = store.NewEvidenceRepository(pool)
	b.reports = store.NewReportRepository(pool)
	b.audit = store.NewAuditRepository(pool)
	return nil
}

func (b *backend) openStorage(ctx context.Context) error {
	c := b.config

	switch c.StorageBackend {
	case "supabase":
		b.files = storage.NewSupabaseStorage(c.SupabaseProjectID, c.SupabaseServiceKey, c.EvidenceBucket)
		b.documents = storage.NewSupabaseStorage(c.SupabaseProjectID, c.SupabaseServiceKey, c.ReportsBucket)
	case "s3":
		awsConfig, err := b.aws(ctx)
		if err != nil {
			return err
		}
		client := storage.NewS3Client(awsConfig, c.S3BaseEndpoint)
		b.files = storage.NewS3Storage(client, c.EvidenceBucket)
		b.documents = storage.NewS3Storage(client, c.ReportsBucket)
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create gcs client: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.files = storage.NewGCSStorage(client, c.EvidenceBucket)
		b.documents = storage.NewGCSStorage(client, c.ReportsBucket)
	case "memory":
		b.files = storage.NewMemoryStorage()
		b.documents = storage.NewMemoryStorage()
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	b.logger.WithField("backend", c.StorageBackend).Info("object storage configured")
	return nil
}

func (b *backend) openProfiles(ctx context.Context) error {
	if b.config.CognitoUserPoolID == "" {
		b.profiles = profile.NewStaticSource(types.IssuerProfile{BusinessName: b.config.BrandName})
		return nil
	}

	awsConfig, err := b.aws(ctx)
	if err != nil {
		return err
	}

	b.profiles = profile.NewCognitoSource(cognitoidentityprovider.NewFromConfig(awsConfig), b.config.CognitoUserPoolID)
	return nil
}

func (b *backend) aws(ctx context.Context) (aws.Config, error) {
	if b.awsConfig != nil {
		return *b.awsConfig, nil
	}

	awsConfig, err := loadAWSConfig(ctx)
	if err != nil {
		return aws.Config{}, err
	}
	b.awsConfig = &awsConfig
	return awsConfig, nil
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (b *backend) anchorService() *anchor.Service {
	client := anchor.NewCalendarClient(b.config.CalendarURLs, b.config.CalendarTimeout, b.logger)
	return anchor.NewService(b.evidence, b.audit, client, b.logger)
}

// anchorQueue gives each task enough time to try every calendar.
func (b *backend) anchorQueue(anchorer anchor.Anchorer) *anchor.Queue {
	timeout := b.config.CalendarTimeout * time.Duration(len(b.config.CalendarURLs))
	return anchor.NewQueue(anchorer, b.config.AnchorQueueSize, b.config.AnchorWorkers, timeout, b.logger)
}

func (b *backend) sweeper(queue anchor.Enqueuer) *anchor.Sweeper {
	return anchor.NewSweeper(b.evidence, queue, b.config.AnchorSweepInterval, b.config.AnchorSweepGrace, b.config.AnchorSweepBatch, b.logger)
}

func (b *backend) evidenceService(queue anchor.Enqueuer) *evidence.Service {
	return evidence.NewService(b.jobs, b.evidence, b.audit, b.files, queue, evidence.Limits{
		MaxUploadBytes:       b.config.MaxUploadBytes,
		MaxDescriptionLength: b.config.MaxDescriptionLength,
		BatchConcurrency:     b.config.BatchConcurrency,
	}, b.logger)
}

func (b *backend) reportService() *report.Service {
	return report.NewService(report.ServiceConfig{
		Jobs:      b.jobs,
		Evidence:  b.evidence,
		Reports:   b.reports,
		Audit:     b.audit,
		Files:     b.files,
		Documents: b.documents,
		Profiles:  b.profiles,
		Brand:     b.config.BrandName,
		Logger:    b.logger,
	})
}

func (b *backend) quotaTracker() *quota.Tracker {
	var lookup quota.PlanLookup
	if b.config.StripeSecretKey != "" {
		lookup = quota.NewStripePlans(b.config.StripeSecretKey)
	}

	limits := quota.NewPlanLimits(b.config.StorageLimitBytes, b.config.PlanStorageLimits, lookup, b.logger)
	return quota.NewTracker(quotaStore{b.jobs, b.evidence, b.reports}, b.audit, b.files, limits, b.logger)
}
