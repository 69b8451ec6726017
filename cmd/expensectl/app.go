package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"reisekosten/internal/amqp"
	"reisekosten/internal/analyzer"
	"reisekosten/internal/backend"
	"reisekosten/internal/cli"
	"reisekosten/internal/config"
	"reisekosten/internal/log"
	"reisekosten/internal/services"
)

// app is what every subcommand works against.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    *services.ExpenseStore
	analyzer analyzer.Analyzer
	closers  []func() error
}

// openApp loads configuration and connects the store. Logs go to stderr at
// warn unless LOG_LEVEL says otherwise, so they do not mix with reports.
func openApp(ctx context.Context) (*app, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	level := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Component: log.ComponentApp,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}

	a := &app{cfg: cfg, logger: logger, analyzer: analyzer.Disabled{}}
	if result.Cleanup != nil {
		a.closers = append(a.closers, result.Cleanup)
	}

	opts := []services.StoreOption{services.WithLogger(logger)}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, services.WithPublisher(client))
	}
	a.store = services.NewExpenseStore(result.Repository, opts...)

	if cfg.AnalyzerEnabled() {
		gemini, err := analyzer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("receipt analyzer: %w", err)
		}
		a.analyzer = gemini
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close failed", log.FieldError, err)
		}
	}
}
