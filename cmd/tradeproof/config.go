package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"tradeproof/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const environmentDevelopment = "development"

func loadConfig(cCtx *cli.Context) (*types.Config, error) {
	// Real environment variables win over the dotenv file.
	if err := godotenv.Load(cCtx.String("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	c := new(types.Config)
	if err := envconfig.Process(cCtx.String("env-prefix"), c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.DatabaseURL == "" && c.Environment != environmentDevelopment {
		return nil, fmt.Errorf("set DATABASE_URL")
	}

	switch c.StorageBackend {
	case "supabase":
		if c.SupabaseProjectID == "" || c.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("set SUPABASE_PROJECT_ID and SUPABASE_SERVICE_KEY for the supabase storage backend")
		}
	case "s3", "gcs":
	case "memory":
		if c.Environment != environmentDevelopment {
			return nil, fmt.Errorf("the memory storage backend is only available in development")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if len(c.CalendarURLs) == 0 {
		return nil, fmt.Errorf("set at least one OTS_CALENDAR_URLS entry")
	}

	if c.StorageLimitBytes <= 0 {
		return nil, fmt.Errorf("STORAGE_LIMIT_BYTES must be positive")
	}

	if c.MaxBatchBytes < c.MaxUploadBytes {
		return nil, fmt.Errorf("MAX_BATCH_BYTES must be at least MAX_UPLOAD_BYTES")
	}

	return c, nil
}

func newLogger(c *types.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}

func jwksURL(c *types.Config) string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	if c.JWTIssuerURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.JWTIssuerURL, "/") + "/.well-known/jwks.json"
}

func decodeKey(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return key, nil
}
