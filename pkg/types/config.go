package types

import "time"

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	DatabaseSchema  string `envconfig:"DATABASE_SCHEMA" default:"tradeproof"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"60"`

	// Bearer token verification. The issuer is either the Supabase auth
	// endpoint or a Cognito user pool, both publish a JWKS document.
	JWTIssuerURL string `envconfig:"JWT_ISSUER_URL"`
	JWKSURL      string `envconfig:"JWKS_URL"`

	// Cognito, used only to read the issuer profile printed on reports
	CognitoUserPoolID string `envconfig:"COGNITO_USER_POOL_ID"`

	// Object storage. Backend is one of supabase, s3, gcs, memory.
	StorageBackend     string `envconfig:"STORAGE_BACKEND" default:"supabase"`
	EvidenceBucket     string `envconfig:"EVIDENCE_BUCKET" default:"evidence"`
	ReportsBucket      string `envconfig:"REPORTS_BUCKET" default:"reports"`
	SupabaseProjectID  string `envconfig:"SUPABASE_PROJECT_ID"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_KEY"`
	S3BaseEndpoint     string `envconfig:"S3_BASE_ENDPOINT"`

	// Ingest limits
	MaxUploadBytes       int64 `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"` // 50 MiB
	MaxDescriptionLength int   `envconfig:"MAX_DESCRIPTION_LENGTH" default:"2000"`
	BatchConcurrency     int   `envconfig:"BATCH_CONCURRENCY" default:"4"`
	MaxBatchFiles        int   `envconfig:"MAX_BATCH_FILES" default:"20"`
	MaxBatchBytes        int64 `envconfig:"MAX_BATCH_BYTES" default:"134217728"` // 128 MiB

	// Timestamp anchoring
	CalendarURLs        []string      `envconfig:"OTS_CALENDAR_URLS" default:"https://a.pool.opentimestamps.org,https://b.pool.opentimestamps.org"`
	CalendarTimeout     time.Duration `envconfig:"OTS_CALENDAR_TIMEOUT" default:"15s"`
	AnchorWorkers       int           `envconfig:"ANCHOR_WORKERS" default:"2"`
	AnchorQueueSize     int           `envconfig:"ANCHOR_QUEUE_SIZE" default:"256"`
	AnchorSweepInterval time.Duration `envconfig:"ANCHOR_SWEEP_INTERVAL" default:"15m"`
	AnchorSweepGrace    time.Duration `envconfig:"ANCHOR_SWEEP_GRACE" default:"5m"`
	AnchorSweepBatch    int           `envconfig:"ANCHOR_SWEEP_BATCH" default:"100"`

	// Storage quota. PlanStorageLimits maps a Stripe price lookup key to a
	// byte limit, e.g. "starter:1073741824,pro:10737418240".
	StorageLimitBytes int64            `envconfig:"STORAGE_LIMIT_BYTES" default:"1073741824"` // 1 GiB
	PlanStorageLimits map[string]int64 `envconfig:"PLAN_STORAGE_LIMITS"`
	StripeSecretKey   string           `envconfig:"STRIPE_SECRET_KEY"`

	// Report download links. Keys are base64 encoded, generate with
	// `tradeproof keys`.
	DownloadHashKey  string        `envconfig:"DOWNLOAD_HASH_KEY"`  // 32 or 64 bytes
	DownloadBlockKey string        `envconfig:"DOWNLOAD_BLOCK_KEY"` // 16, 24, or 32 bytes
	DownloadTokenTTL time.Duration `envconfig:"DOWNLOAD_TOKEN_TTL" default:"15m"`

	// Branding printed in every report footer
	BrandName string `envconfig:"BRAND_NAME" default:"TradeProof"`
}
