package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports readiness with a repository probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	switch {
	case s.deps.Store == nil:
		checks["repository"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	case s.deps.Ready == nil:
		checks["repository"] = "ok"
	default:
		if err := s.deps.Ready.Ping(ctx); err != nil {
			checks["repository"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["repository"] = "ok"
		}
	}

	if s.deps.AnalyzerEnabled {
		checks["analyzer"] = "enabled"
	} else {
		checks["analyzer"] = "disabled"
	}
	checks["intake_sessions"] = s.deps.Sessions.Len()
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in plain text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requests := s.tracer.GetMetrics()
	detection := s.detector.GetMetrics()
	limits := s.limiter.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "# HELP reisekosten_http_requests_total Total HTTP requests\n")
	fmt.Fprintf(w, "reisekosten_http_requests_total %d\n", requests.TotalRequests)
	fmt.Fprintf(w, "reisekosten_http_server_errors_total %d\n", requests.ServerErrors)
	fmt.Fprintf(w, "reisekosten_http_last_response_time_microseconds %d\n", requests.AverageResponseTime)
	fmt.Fprintf(w, "reisekosten_security_suspicious_requests_total %d\n", detection.SuspiciousRequests)
	fmt.Fprintf(w, "reisekosten_rate_limit_hits_total %d\n", limits.TotalHits)
	fmt.Fprintf(w, "reisekosten_rate_limit_active_clients %d\n", limits.ClientCount)
	fmt.Fprintf(w, "reisekosten_intake_sessions %d\n", s.deps.Sessions.Len())
	fmt.Fprintf(w, "reisekosten_uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
}
