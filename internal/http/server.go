package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dompet/internal/core"
	appweb "dompet/web"
)

type Server struct {
	http.Server
	templates   *template.Template
	ledger      Ledger
	rateLimiter *rateLimiter
	walletCache *walletCache
}

// Ledger is what the handlers need from the transaction engine.
type Ledger interface {
	CreateTransaction(ctx context.Context, in core.TransactionInput) (int64, error)
	UpdateTransaction(ctx context.Context, id int64, upd core.TransactionUpdate) error
	DeleteTransaction(ctx context.Context, id int64) error
	AdjustWallet(ctx context.Context, counts core.NoteCounts) error
	Wallet(ctx context.Context) ([]core.Denomination, int64, error)
	History(ctx context.Context, period core.Period, sortBy core.SortOrder) ([]core.Transaction, error)
	TransactionDetail(ctx context.Context, id int64) (core.TransactionDetail, error)
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(addr string, ledger Ledger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: nil, // set below, after middleware wrapping
		},
		ledger:      ledger,
		rateLimiter: newRateLimiter(),
		walletCache: newWalletCache(time.Minute),
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/wallet", s.handleWallet)
	mux.HandleFunc("POST /api/wallet/adjust", s.handleAdjustWallet)
	mux.HandleFunc("POST /api/transaction", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transaction/{id}", s.handleTransactionDetail)
	mux.HandleFunc("PUT /api/transaction/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("PUT /api/transaction/{id}/datetime", s.handleUpdateTimestamp)
	mux.HandleFunc("DELETE /api/transaction/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	s.Server.Handler = s.withMiddleware(mux)

	return s
}

// withMiddleware adds request tracing, security headers and rate
// limiting of mutating requests around the whole mux.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", ip,
			"user_agent", r.Header.Get("User-Agent"))

		if mutating(r.Method) && !s.rateLimiter.allow(ip) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", ip, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ip)
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
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

// Simple in-memory rate limiter for mutating requests.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{clients: make(map[string]*clientInfo)}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[ip]
	if !exists || now.Sub(client.lastRequest) > time.Minute {
		rl.clients[ip] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	// Allow up to 60 mutating requests per minute
	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}

// walletCache holds one wallet snapshot with a TTL; every mutation
// invalidates it.
type walletCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	snapshot  *walletResponse
	expiresAt time.Time
}

func newWalletCache(ttl time.Duration) *walletCache {
	return &walletCache{ttl: ttl}
}

func (c *walletCache) get() (*walletResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.snapshot, true
}

func (c *walletCache) set(snapshot *walletResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
	c.expiresAt = time.Now().Add(c.ttl)
}

func (c *walletCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "path", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, "index.html", nil); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
