package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeproof/internal/server"

	"github.com/gorilla/securecookie"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP API and the background anchor workers",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	logger := newLogger(config)

	keysURL := jwksURL(config)
	if keysURL == "" {
		return fmt.Errorf("set JWT_ISSUER_URL or JWKS_URL")
	}

	b, err := openBackend(ctx, config, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	verifier, err := server.NewJWKSVerifier(ctx, keysURL, config.JWTIssuerURL)
	if err != nil {
		return err
	}

	hashKey, err := decodeKey("DOWNLOAD_HASH_KEY", config.DownloadHashKey)
	if err != nil {
		return err
	}
	blockKey, err := decodeKey("DOWNLOAD_BLOCK_KEY", config.DownloadBlockKey)
	if err != nil {
		return err
	}
	if hashKey == nil {
		logger.Warn("DOWNLOAD_HASH_KEY not set, download links will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
	}

	// Anchoring outlives the request that queued it, so the workers get their
	// own context.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	anchors := b.anchorService()
	queue := b.anchorQueue(anchors)
	queue.Start(workerCtx)

	go b.sweeper(queue).Run(ctx)

	srv := server.New(server.Config{
		Port:              config.ServerPort,
		ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
		MaxBodyBytes:      config.MaxUploadBytes + 1<<20,
		MaxBatchBodyBytes: config.MaxBatchBytes,
		MaxBatchFiles:     config.MaxBatchFiles,
	}, logger, server.Deps{
		Verifier: verifier,
		Tokens:   server.NewDownloadTokens(hashKey, blockKey, config.DownloadTokenTTL),
		Evidence: b.evidenceService(queue),
		Anchors:  anchors,
		Reports:  b.reportService(),
		Quota:    b.quotaTracker(),
	})

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("failed to stop http server cleanly")
	}

	// Give queued anchors until the deadline; anything left is picked up by
	// the next sweep.
	drained := make(chan struct{})
	go func() {
		queue.Close()
		close(drained)
	}()

	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("anchor queue not drained before shutdown deadline")
		cancelWorkers()
		<-drained
	}

	return nil
}
