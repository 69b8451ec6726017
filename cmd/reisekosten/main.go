package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"reisekosten/internal/amqp"
	"reisekosten/internal/analyzer"
	"reisekosten/internal/auth"
	"reisekosten/internal/cache"
	"reisekosten/internal/cli"
	apphttp "reisekosten/internal/http"
	"reisekosten/internal/intake"
	"reisekosten/internal/log"
	"reisekosten/internal/middleware/ratelimit"
	"reisekosten/internal/repository"
	"reisekosten/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	result := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	}()

	opts := []services.StoreOption{services.WithLogger(logger)}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		opts = append(opts, services.WithPublisher(client))
		logger.Info("Publishing expense events", "exchange", cfg.AMQPExchange)
	}

	var verifier *auth.Verifier
	if cfg.AuthJWTSecret != "" {
		v, err := auth.NewVerifier(cfg.AuthJWTSecret)
		if err != nil {
			logger.Error("Invalid auth configuration", log.FieldError, err)
			os.Exit(1)
		}
		verifier = v
		opts = append(opts, services.WithSession(auth.ContextSession{}))
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	store := services.NewExpenseStore(result.Repository, opts...)

	caches := cache.NewManager(logger)

	var recognizer analyzer.Analyzer = analyzer.Disabled{}
	if cfg.AnalyzerEnabled() {
		gemini, err := analyzer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Error("Failed to initialize receipt analyzer", log.FieldError, err)
			os.Exit(1)
		}
		cached := analyzer.NewCached(gemini, cfg.AnalyzerCacheSize, cfg.AnalyzerCacheTTL)
		caches.Register(cached.Cleaner())
		recognizer = cached
		logger.Info("Receipt analysis enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("Receipt analysis disabled, GEMINI_API_KEY not set")
	}

	sessions := intake.NewSessions(cfg.IntakeSessionTTL)
	caches.Register(sessions.Cleaner())

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	caches.Register(limiter)

	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	var ready repository.Pinger
	if p, ok := result.Repository.(repository.Pinger); ok {
		ready = p
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:           store,
		Ready:           ready,
		Analyzer:        recognizer,
		AnalyzerEnabled: cfg.AnalyzerEnabled(),
		Sessions:        sessions,
		Verifier:        verifier,
		Limiter:         limiter,
		Location:        cfg.Location(),
		SettleDelay:     cfg.IntakeSettleDelay,
		Logger:          logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting reisekosten server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"timezone", cfg.Location().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
