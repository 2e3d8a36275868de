package http

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"poupa/internal/auth"
	applog "poupa/internal/log"
	"poupa/internal/middleware/ratelimit"
	"poupa/internal/middleware/security"
	"poupa/internal/middleware/trace"
	"poupa/internal/ports"
	"poupa/internal/services"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the services behind the routes. Chat and Telegram may be nil.
type Deps struct {
	Transactions *services.TransactionService
	Dashboard    *services.DashboardService
	Reports      *services.ReportService
	Chat         *services.ChatService
	Telegram     ports.Notifier
	Ready        []ReadinessCheck
}

type Options struct {
	Addr     string
	Location *time.Location
	Logger   *applog.Logger
	// Verifier guards /api/*; nil answers 503 there.
	Verifier *auth.Verifier
	// WebhookToken, when set, must accompany every webhook call.
	WebhookToken string
	// Limiter throttles mutating requests; nil uses an in-memory limiter.
	Limiter    ratelimit.Allower
	TrustProxy bool
}

type Server struct {
	http.Server
	deps         Deps
	loc          *time.Location
	logger       *applog.Logger
	verifier     *auth.Verifier
	webhookToken string

	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	localLimiter     *ratelimit.Limiter
	rateLimitMetrics ratelimit.Metrics
	appMetrics       appMetrics
	shutdownOnce     sync.Once
}

type appMetrics struct {
	uptime              time.Time
	transactionsCreated int64
	reportsGenerated    int64
	chatMessages        int64
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, deps Deps) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:             deps,
		loc:              opts.Location,
		logger:           logger,
		verifier:         opts.Verifier,
		webhookToken:     opts.WebhookToken,
		securityDetector: security.NewDetector(),
		appMetrics:       appMetrics{uptime: time.Now()},
	}

	extractIP := s.securityDetector.ExtractClientIP
	if !opts.TrustProxy {
		extractIP = remoteIP
	}
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, extractIP)

	limiter := opts.Limiter
	if limiter == nil {
		s.localLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
		limiter = s.localLimiter
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /api/metadata", s.api(s.handleMetadata))
	mux.Handle("GET /api/transactions", s.api(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.api(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/{id}", s.api(s.handleGetTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.api(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.api(s.handleDeleteTransaction))
	mux.Handle("GET /api/dashboard", s.api(s.handleDashboard))
	mux.Handle("POST /api/reports", s.api(s.handleCreateReport))

	mux.Handle("POST /webhooks/whatsapp", s.webhook(s.handleWhatsAppWebhook))
	mux.Handle("POST /webhooks/telegram", s.webhook(s.handleTelegramWebhook))

	var handler http.Handler = mux
	handler = ratelimit.Middleware(limiter, extractIP, &s.rateLimitMetrics, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// api requires a bearer token and hands the handler the caller's user ID.
func (s *Server) api(h func(http.ResponseWriter, *http.Request, string)) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			ErrorResponse(http.StatusUnauthorized, "missing user").Write(w)
			return
		}
		h(w, r, userID)
	})
	if s.verifier == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusServiceUnavailable, "authentication is not configured").Write(w)
		})
	}
	return s.verifier.Middleware(inner)
}

// webhook checks the shared token, sent as ?token= or in a header.
func (s *Server) webhook(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.webhookToken != "" {
			got := r.URL.Query().Get("token")
			if got == "" {
				got = r.Header.Get("X-Webhook-Token")
			}
			if got == "" {
				got = r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookToken)) != 1 {
				s.logger.WarnContext(r.Context(), "Webhook token rejected", applog.FieldPath, r.URL.Path)
				ErrorResponse(http.StatusForbidden, "forbidden").Write(w)
				return
			}
		}
		h(w, r)
	})
}

// Shutdown stops background helpers and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		if s.localLimiter != nil {
			s.localLimiter.Stop()
		}
	})
	return s.Server.Shutdown(ctx)
}

func (s *Server) countTransaction() { atomic.AddInt64(&s.appMetrics.transactionsCreated, 1) }
func (s *Server) countReport()      { atomic.AddInt64(&s.appMetrics.reportsGenerated, 1) }
func (s *Server) countChatMessage() { atomic.AddInt64(&s.appMetrics.chatMessages, 1) }

// remoteIP ignores forwarding headers.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
