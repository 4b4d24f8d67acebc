// Package http exposes the ledger engine as a JSON API. Identity arrives as
// the X-User-ID header; authentication itself lives in front of this
// service.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"conti/internal/ledger"
	"conti/internal/log"
)

type Server struct {
	http.Server

	coordinator *ledger.Coordinator
	aggregates  *ledger.AggregateService
	rateLimiter *rateLimiter
	logger      *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, coordinator *ledger.Coordinator, aggregates *ledger.AggregateService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		coordinator: coordinator,
		aggregates:  aggregates,
		rateLimiter: newRateLimiter(60, time.Minute),
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.HandleFunc("POST /api/transactions", s.requireUser(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.requireUser(s.handleListTransactions))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.requireUser(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.requireUser(s.handleDeleteTransaction))
	mux.HandleFunc("POST /api/transfers", s.requireUser(s.handleCreateTransfer))
	mux.HandleFunc("GET /api/aggregates/{year}/{month}", s.requireUser(s.handleGetAggregate))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(logger)(s.withLimits(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withLimits applies write rate limiting per client before routing.
func (s *Server) withLimits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWrite(r.Method) && !s.rateLimiter.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodPut:
		return true
	}
	return false
}

// requireUser extracts the caller from X-User-ID and rejects anonymous
// requests.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		next(w, r, userID)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the server and its background limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
