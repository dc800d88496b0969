// Package server exposes the evidence, report and quota operations as a JSON
// API under /functions/v1.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/evidence"
	"tradeproof/internal/quota"
	"tradeproof/internal/report"
	"tradeproof/internal/score"
	"tradeproof/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/sirupsen/logrus"
)

const apiPrefix = "/functions/v1"

var decoder = form.NewDecoder()

type EvidenceService interface {
	Ingest(ctx context.Context, scope types.Scope, in evidence.Upload) (*evidence.Result, error)
	IngestBatch(ctx context.Context, scope types.Scope, in evidence.BatchUpload) (*evidence.BatchResult, error)
	List(ctx context.Context, scope types.Scope, jobID string) ([]*types.EvidenceItem, error)
	Status(ctx context.Context, scope types.Scope, jobID string) (*types.Job, score.Factors, error)
}

type AnchorService interface {
	Anchor(ctx context.Context, scope types.Scope, evidenceID string) (*anchor.Result, error)
}

type ReportService interface {
	Generate(ctx context.Context, scope types.Scope, jobID string, format types.ReportType, meta types.RequestMeta) (*report.Generated, error)
	Register(ctx context.Context, scope types.Scope, jobID string) ([]byte, string, error)
	Download(ctx context.Context, scope types.Scope, reportID string) (*types.Report, []byte, error)
}

type QuotaService interface {
	Usage(ctx context.Context, scope types.Scope) (*quota.Usage, error)
	Cleanup(ctx context.Context, scope types.Scope, olderThan time.Duration, limit int) (*quota.CleanupResult, error)
}

type Config struct {
	Port         uint
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxBodyBytes caps a single upload request. MaxBatchBodyBytes caps a
	// batch request across all of its files.
	MaxBodyBytes      int64
	MaxBatchBodyBytes int64
	MaxBatchFiles     int
}

type Service struct {
	logger   logrus.FieldLogger
	config   Config
	verifier TokenVerifier
	tokens   *DownloadTokens

	evidence EvidenceService
	anchors  AnchorService
	reports  ReportService
	quota    QuotaService

	handler http.Handler
	server  *http.Server
}

type Deps struct {
	Verifier TokenVerifier
	Tokens   *DownloadTokens
	Evidence EvidenceService
	Anchors  AnchorService
	Reports  ReportService
	Quota    QuotaService
}

func New(config Config, logger logrus.FieldLogger, deps Deps) *Service {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 << 20
	}
	if config.MaxBatchBodyBytes <= 0 {
		config.MaxBatchBodyBytes = 128 << 20
	}
	if config.MaxBatchFiles <= 0 {
		config.MaxBatchFiles = 20
	}

	mux := flow.New()

	s := &Service{
		logger:   logger,
		config:   config,
		verifier: deps.Verifier,
		tokens:   deps.Tokens,
		evidence: deps.Evidence,
		anchors:  deps.Anchors,
		reports:  deps.Reports,
		quota:    deps.Quota,
	}

	s.buildRouter(mux)
	s.handler = s.CORS(mux)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	return s
}

// Handler is the full middleware chain, exposed for tests.
func (s *Service) Handler() http.Handler {
	return s.handler
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)

	// The token itself identifies the caller.
	r.HandleFunc(apiPrefix+"/reports/download", s.handleDownloadReport, http.MethodGet)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)

		r.HandleFunc(apiPrefix+"/evidence-upload", s.handleUploadEvidence, http.MethodPost)
		r.HandleFunc(apiPrefix+"/evidence-upload-batch", s.handleUploadEvidenceBatch, http.MethodPost)
		r.HandleFunc(apiPrefix+"/jobs/:jobID/evidence", s.handleListEvidence, http.MethodGet)
		r.HandleFunc(apiPrefix+"/jobs/:jobID/protection-status", s.handleProtectionStatus, http.MethodGet)
		r.HandleFunc(apiPrefix+"/evidence/:evidenceID/timestamp", s.handleTimestampEvidence, http.MethodPost)

		r.HandleFunc(apiPrefix+"/generate-report", s.handleGenerateReport, http.MethodPost)
		r.HandleFunc(apiPrefix+"/jobs/:jobID/evidence-register", s.handleEvidenceRegister, http.MethodGet)

		r.HandleFunc(apiPrefix+"/storage-quota", s.handleStorageQuota, http.MethodGet)
		r.HandleFunc(apiPrefix+"/cleanup-storage", s.handleCleanupStorage, http.MethodPost)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.success(w, map[string]any{"status": "ok"})
}

func (s *Service) scopeFromContext(ctx context.Context) (types.Scope, error) {
	userID, ok := ctx.Value(contextKeyUserID).(string)
	if !ok || userID == "" {
		return types.Scope{}, types.ErrUnauthorized
	}
	return types.NewScope(userID), nil
}
