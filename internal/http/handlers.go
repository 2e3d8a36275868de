package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"poupa/internal/core"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady runs every readiness check with a shared deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.deps.Ready))

	for _, c := range s.deps.Ready {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			s.logger.WarnContext(r.Context(), "Readiness check failed", "check", c.Name, "error", err)
			continue
		}
		checks[c.Name] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.traceMiddleware.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("transactions_created_total", "counter", "Transactions created through the API", atomic.LoadInt64(&s.appMetrics.transactionsCreated))
	metric("reports_generated_total", "counter", "Reports generated through the API", atomic.LoadInt64(&s.appMetrics.reportsGenerated))
	metric("chat_messages_total", "counter", "Chat messages received on webhooks", atomic.LoadInt64(&s.appMetrics.chatMessages))
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", s.rateLimitMetrics.Hits())
	metric("suspicious_requests_total", "counter", "Requests matching a probe pattern", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Process uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

type enumOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// handleMetadata lists the enum values with their display labels.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request, _ string) {
	types := make([]enumOption, 0, len(core.TransactionTypes()))
	for _, t := range core.TransactionTypes() {
		types = append(types, enumOption{Value: string(t), Label: t.Label()})
	}
	categories := make([]enumOption, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		categories = append(categories, enumOption{Value: string(c), Label: c.Label()})
	}
	methods := make([]enumOption, 0, len(core.PaymentMethods()))
	for _, p := range core.PaymentMethods() {
		methods = append(methods, enumOption{Value: string(p), Label: p.Label()})
	}

	NewJSONResponse().Body(map[string]any{
		"transactionTypes": types,
		"categories":       categories,
		"paymentMethods":   methods,
		"currency":         "BRL",
	}).Write(w)
}
