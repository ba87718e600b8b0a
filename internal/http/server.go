// Package http serves the wallet over a JSON API with a websocket change
// feed.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"wallet/internal/cache"
	"wallet/internal/events"
	"wallet/internal/log"
	"wallet/internal/middleware/ratelimit"
	"wallet/internal/middleware/security"
	"wallet/internal/middleware/trace"
	"wallet/internal/services"
	"wallet/internal/view"
)

// Options wires a Server. Service is required; the rest have defaults or are
// switched off when nil.
type Options struct {
	Addr      string
	Service   *services.WalletService
	Publisher events.Publisher
	Hub       *Hub
	Limiter   *ratelimit.Limiter
	Detector  *security.Detector
	Headers   *security.HeadersConfig
	RowsCache *cache.LRUCache[[]view.Row]
	// Ready checks the storage backend for /readyz.
	Ready  func(context.Context) error
	Logger *log.Logger
}

type Server struct {
	http.Server

	svc       *services.WalletService
	publisher events.Publisher
	hub       *Hub
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	rowsCache *cache.LRUCache[[]view.Row]
	ready     func(context.Context) error
	logger    *log.Logger
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	detector := opts.Detector
	if detector == nil {
		detector = security.NewDetector()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	s := &Server{
		svc:       opts.Service,
		publisher: opts.Publisher,
		hub:       opts.Hub,
		limiter:   limiter,
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP, logger),
		rowsCache: opts.RowsCache,
		ready:     opts.Ready,
		logger:    logger.WithComponent(log.ComponentHTTP),
		started:   time.Now(),
	}

	mux := http.NewServeMux()
	limited := limiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.Handle("POST /api/transactions", limited(http.HandlerFunc(s.handleCreateTransaction)))
	mux.Handle("DELETE /api/transactions", limited(http.HandlerFunc(s.handleDeleteAt)))
	mux.Handle("DELETE /api/transactions/{id}", limited(http.HandlerFunc(s.handleDeleteTransaction)))
	mux.HandleFunc("GET /api/totals", s.handleTotals)
	mux.HandleFunc("GET /api/filter", s.handleGetFilter)
	mux.Handle("PUT /api/filter", limited(http.HandlerFunc(s.handleSetFilter)))
	mux.Handle("POST /api/storage/imported", limited(http.HandlerFunc(s.handleStorageImported)))
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(headers).Middleware(handler)
	handler = detector.Middleware(logger, false)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe runs until Shutdown; a clean stop returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the rate limiter, disconnects websocket clients and drains
// the HTTP server. Only the first call does anything.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.hub != nil {
			if err := s.hub.Close(); err != nil {
				s.logger.Warn("Closing websocket hub", log.FieldError, err)
			}
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(r, http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}
