package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"reisekosten/internal/analyzer"
	"reisekosten/internal/auth"
	"reisekosten/internal/intake"
	"reisekosten/internal/log"
	"reisekosten/internal/middleware/ratelimit"
	"reisekosten/internal/middleware/security"
	"reisekosten/internal/middleware/trace"
	"reisekosten/internal/repository"
	"reisekosten/internal/services"
)

// Deps are the collaborators of the API server.
type Deps struct {
	Store    *services.ExpenseStore
	Ready    repository.Pinger
	Analyzer analyzer.Analyzer
	// AnalyzerEnabled is reported by /readyz and decides the default of skip_ai.
	AnalyzerEnabled bool
	Sessions        *intake.Sessions
	// Verifier enables bearer authentication for /api. Nil disables it.
	Verifier    *auth.Verifier
	Limiter     *ratelimit.Limiter
	Location    *time.Location
	SettleDelay time.Duration
	Logger      *log.Logger
}

// Server is the JSON API on top of the expense store, the analytics
// aggregator and the intake pipeline.
type Server struct {
	http.Server

	deps     Deps
	logger   *log.Logger
	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	started  time.Time
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Analyzer == nil {
		deps.Analyzer = analyzer.Disabled{}
	}
	if deps.Sessions == nil {
		deps.Sessions = intake.NewSessions(30 * time.Minute)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		detector: security.NewDetector(),
		limiter:  deps.Limiter,
		started:  time.Now(),
		now:      time.Now,
	}
	s.tracer = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("GET /api/expenses/latest", s.handleLatestExpenses)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	api.HandleFunc("GET /api/analytics/series", s.handleSeries)
	api.HandleFunc("GET /api/analytics/categories", s.handleCategories)
	api.HandleFunc("GET /api/analytics/stats", s.handleStats)

	api.HandleFunc("POST /api/intake", s.handleStartIntake)
	api.HandleFunc("GET /api/intake/{id}", s.handleIntakeView)
	api.HandleFunc("PATCH /api/intake/{id}/draft", s.handleEditDraft)
	api.HandleFunc("POST /api/intake/{id}/submit", s.handleSubmitDraft)
	api.HandleFunc("POST /api/intake/{id}/auto", s.handleRunAutomatic)
	api.HandleFunc("DELETE /api/intake/{id}/current", s.handleRemoveCurrent)
	api.HandleFunc("DELETE /api/intake/{id}", s.handleCancelIntake)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("/api/", s.requireAuth(api))

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = s.flagSuspicious(handler)
	handler = security.Headers(security.APIHeadersConfig())(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.deps.Verifier == nil {
		return next
	}
	return auth.Middleware(s.deps.Verifier, func(w http.ResponseWriter, r *http.Request, err error) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Unauthenticated request",
			log.FieldComponent, log.ComponentAuth,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		FromError(err).Write(w)
	})(next)
}

func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request blocked",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			BadRequestError("request rejected").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later", "").Write(w)
}

// today is now in the configured time zone.
func (s *Server) today() time.Time {
	return s.now().In(s.deps.Location)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		err = s.Server.Shutdown(ctx)
	})
	return err
}
