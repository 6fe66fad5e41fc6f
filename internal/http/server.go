// Package http exposes the ledger over a JSON REST surface: the three write
// and read endpoints the UI calls, the derived analytics views, and the
// reminder/share link endpoints.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"daftar/internal/cache"
	"daftar/internal/core"
	applog "daftar/internal/log"
)

// Ledger is the slice of the store the HTTP surface depends on.
type Ledger interface {
	ListDebtors(ctx context.Context) ([]core.Debtor, error)
	GetDebtor(ctx context.Context, id string) (core.Debtor, error)
	CreateDebtor(ctx context.Context, in core.NewDebtor) (core.Debtor, error)
	AppendTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error)
	Ping(ctx context.Context) error
}

// EventPublisher announces committed writes to the notification pipeline.
// Publishing is best-effort: a broker outage never fails a committed write.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, transactionID, debtorID string) error
}

type Server struct {
	http.Server

	ledger    Ledger
	publisher EventPublisher
	logger    *applog.Logger

	shareBaseURL   string
	requestTimeout time.Duration

	rateLimiter *rateLimiter

	// Derived views are cached briefly and purged on every successful
	// write, so a response never shows a balance the store did not commit.
	debtorsCache   *cache.LRUCache[[]core.Debtor]
	analyticsCache *cache.LRUCache[analyticsResponse]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

type Options struct {
	Addr           string
	ShareBaseURL   string
	RequestTimeout time.Duration
	Publisher      EventPublisher // optional
	Logger         *applog.Logger // optional
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(ledger Ledger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 7 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		ledger:         ledger,
		publisher:      opts.Publisher,
		logger:         opts.Logger,
		shareBaseURL:   opts.ShareBaseURL,
		requestTimeout: opts.RequestTimeout,
		rateLimiter:    newRateLimiter(),
		debtorsCache:   cache.NewLRUCache[[]core.Debtor](4, 15*time.Second),
		analyticsCache: cache.NewLRUCache[analyticsResponse](64, 15*time.Second),
		cacheManager:   cache.NewManager(),
	}

	s.cacheManager.Register(s.debtorsCache)
	s.cacheManager.Register(s.analyticsCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/debtors", s.withCommon(s.handleListDebtors))
	mux.HandleFunc("POST /api/debtors", s.withCommon(s.handleCreateDebtor))
	mux.HandleFunc("POST /api/transactions", s.withCommon(s.handleAppendTransaction))
	mux.HandleFunc("GET /api/transactions", s.withCommon(s.handleListTransactions))
	mux.HandleFunc("GET /api/analytics", s.withCommon(s.handleAnalytics))
	mux.HandleFunc("GET /api/debtors/{id}/reminder", s.withCommon(s.handleReminder))
	mux.HandleFunc("GET /api/debtors/{id}/share", s.withCommon(s.handleShare))

	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withCommon adds request ids, structured request logging, security headers
// and write rate limiting around a handler.
func (s *Server) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := r.Context()

		s.logger.InfoContext(ctx, "Request started",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP,
			applog.FieldUserAgent, r.Header.Get("User-Agent"))

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldRequestID, requestID,
				applog.FieldClientIP, clientIP)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", Retryable: true})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// invalidateDerived drops every cached derived view after a write.
func (s *Server) invalidateDerived() {
	s.debtorsCache.Purge()
	s.analyticsCache.Purge()
}

// snapshot returns the full ledger, served from the short-lived cache when a
// fresh copy is available.
func (s *Server) snapshot(ctx context.Context) ([]core.Debtor, error) {
	if debtors, ok := s.debtorsCache.Get("all"); ok {
		return debtors, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	debtors, err := s.ledger.ListDebtors(cctx)
	if err != nil {
		return nil, err
	}
	s.debtorsCache.Set("all", debtors)
	return debtors, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
