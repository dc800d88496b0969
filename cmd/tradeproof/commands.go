package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/db"
	"tradeproof/internal/seed"
	"tradeproof/pkg/types"

	"github.com/gorilla/securecookie"
	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var userFlag = &cli.StringFlag{
	Name:     "user",
	Aliases:  []string{"u"},
	Usage:    "User id the command acts for",
	Required: true,
}

var migrateCommand = &cli.Command{
	Name:      "migrate",
	Usage:     "Apply database migrations",
	ArgsUsage: "[up|down|status|version]",
	Action: func(cCtx *cli.Context) error {
		config, err := loadConfig(cCtx)
		if err != nil {
			return err
		}
		if config.DatabaseURL == "" {
			return fmt.Errorf("set DATABASE_URL")
		}

		command := cCtx.Args().First()
		if command == "" {
			command = "up"
		}

		ctx := context.Background()

		pool, err := db.Connect(ctx, config)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		return db.Migrate(ctx, pool, command)
	},
}

var anchorCommand = &cli.Command{
	Name:  "anchor",
	Usage: "Timestamp one batch of evidence that is still waiting for a proof",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "grace",
			Usage: "Only pick up evidence older than this",
			Value: 0,
		},
		&cli.IntFlag{
			Name:  "batch",
			Usage: "Maximum number of items to anchor",
			Value: 100,
		},
	},
	Action: func(cCtx *cli.Context) error {
		config, err := loadConfig(cCtx)
		if err != nil {
			return err
		}
		config.AnchorSweepGrace = cCtx.Duration("grace")
		config.AnchorSweepBatch = cCtx.Int("batch")
		config.AnchorQueueSize = max(config.AnchorQueueSize, config.AnchorSweepBatch)

		logger := newLogger(config)
		ctx := context.Background()

		b, err := openBackend(ctx, config, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		queue := b.anchorQueue(b.anchorService())
		queue.Start(ctx)

		queued, err := b.sweeper(queue).Sweep(ctx)
		queue.Close()
		if err != nil {
			return fmt.Errorf("failed to select pending evidence: %w", err)
		}

		pp.Println(map[string]any{
			"queued":       queued,
			"verify_url":   anchor.VerifyURL,
			"verification": anchor.VerificationProcedure,
		})
		return nil
	},
}

var quotaCommand = &cli.Command{
	Name:  "quota",
	Usage: "Print a user's storage usage",
	Flags: []cli.Flag{userFlag},
	Action: func(cCtx *cli.Context) error {
		config, err := loadConfig(cCtx)
		if err != nil {
			return err
		}

		ctx := context.Background()
		b, err := openBackend(ctx, config, newLogger(config))
		if err != nil {
			return err
		}
		defer b.Close()

		usage, err := b.quotaTracker().Usage(ctx, types.NewScope(cCtx.String("user")))
		if err != nil {
			return err
		}

		pp.Println(usage)
		return nil
	},
}

var cleanupCommand = &cli.Command{
	Name:  "cleanup",
	Usage: "Delete a user's oldest evidence files to free storage",
	Flags: []cli.Flag{
		userFlag,
		&cli.IntFlag{
			Name:  "older-than-days",
			Usage: "Only delete evidence created more than this many days ago",
			Value: 90,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of items to delete",
			Value: 50,
		},
	},
	Action: func(cCtx *cli.Context) error {
		config, err := loadConfig(cCtx)
		if err != nil {
			return err
		}

		ctx := context.Background()
		b, err := openBackend(ctx, config, newLogger(config))
		if err != nil {
			return err
		}
		defer b.Close()

		olderThan := time.Duration(cCtx.Int("older-than-days")) * 24 * time.Hour
		result, err := b.quotaTracker().Cleanup(ctx, types.NewScope(cCtx.String("user")), olderThan, cCtx.Int("limit"))
		if err != nil {
			return err
		}

		pp.Println(result)
		return nil
	},
}

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Create demo jobs with evidence for a user",
	Flags: []cli.Flag{
		userFlag,
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of jobs to create",
			Value:   3,
		},
	},
	Action: func(cCtx *cli.Context) error {
		config, err := loadConfig(cCtx)
		if err != nil {
			return err
		}

		logger := newLogger(config)
		ctx := context.Background()

		b, err := openBackend(ctx, config, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ids, err := seed.SeedDemoJobs(ctx, b.jobs, b.evidenceService(leavePending{}), types.NewScope(cCtx.String("user")), cCtx.Int("count"), rng)
		if err != nil {
			return err
		}

		logger.WithField("jobs", len(ids)).Info("demo jobs seeded")
		pp.Println(ids)
		return nil
	},
}

// leavePending drops anchor tasks; seeded evidence is picked up by the
// next sweep instead.
type leavePending struct{}

func (leavePending) Enqueue(anchor.Task) bool { return false }

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "Generate DOWNLOAD_HASH_KEY and DOWNLOAD_BLOCK_KEY values",
	Action: func(cCtx *cli.Context) error {
		fmt.Printf("DOWNLOAD_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(64)))
		fmt.Printf("DOWNLOAD_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)))
		return nil
	},
}
