package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"reisekosten/internal/amqp"
	"reisekosten/internal/backend"
	"reisekosten/internal/cli"
	"reisekosten/internal/log"
	gsheet "reisekosten/internal/sheets/google"
	"reisekosten/internal/worker"
)

const reconcileInterval = 6 * time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting reisekosten-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.RequireSheetsMirror(); err != nil {
		logger.Error("Sheets mirror not configured", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	// The repository is only read, for reconciliation.
	result := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	creds, err := gsheet.LoadCredentials(cfg.GoogleServiceAccountFile, cfg.GoogleServiceAccountJSON)
	if err != nil {
		logger.Error("Failed to load service account credentials", log.FieldError, err)
		os.Exit(1)
	}
	mirror, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: creds,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewMirrorWorker(mirror, logger)

	// A process-local memory backend is always empty here and would clear
	// the whole sheet.
	reconcile := cfg.DataBackend != string(backend.MemoryBackend)
	if !reconcile {
		logger.Warn("Reconciliation disabled for the memory backend")
	}

	// Catch up on anything missed while the worker was down. Failure is not
	// fatal, the periodic pass retries.
	if reconcile {
		if _, err := w.Reconcile(ctx, result.Repository); err != nil {
			logger.Error("Startup reconciliation failed", log.FieldError, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx, client)
	})
	g.Go(func() error {
		if !reconcile {
			return nil
		}
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if _, err := w.Reconcile(gctx, result.Repository); err != nil {
					logger.Error("Periodic reconciliation failed", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", "stats", w.Stats())
}
