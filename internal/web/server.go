// Package web provides the HTTP API for the trial directory: public
// search and export, admin sign-in, record editing, bulk CSV import
// with progress streaming, and the audit log.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"trialdex/internal/auth"
	"trialdex/internal/config"
	"trialdex/internal/core"
	"trialdex/internal/metrics"
	"trialdex/internal/web/middleware"
)

// Server is the directory's HTTP server.
type Server struct {
	service *core.Service
	auth    *auth.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires the router over the application services.
func NewServer(service *core.Service, authSvc *auth.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		auth:    authSvc,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Public directory access.
		r.Get("/trials", s.handleSearch)
		r.Get("/trials/{id}", s.handleGetTrial)
		r.Get("/export", s.handleExport)

		r.Post("/auth/login", s.handleLogin)

		// Session required.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.auth))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/session", s.handleSession)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(auth.CapEditTrials))
				r.Post("/trials", s.handleCreateTrial)
				r.Put("/trials/{id}", s.handleUpdateTrial)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(auth.CapImport))
				r.Post("/imports", s.handleStartImport)
				r.Get("/imports/{id}/progress", s.handleImportProgress)
				r.Get("/imports/{id}/events", s.handleImportEvents)
				r.Get("/imports/{id}/result", s.handleImportResult)
				r.Post("/imports/{id}/cancel", s.handleCancelImport)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(auth.CapViewAudit))
				r.Get("/audit-log", s.handleAuditLog)
			})
		})
	})
}

// Start begins serving. WriteTimeout stays disabled so progress event
// streams are not cut off mid-import.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, capacity := s.service.ImportSlots()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"imports_active":  active,
		"import_capacity": capacity,
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a fixed-window token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops visitors idle for two windows.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:  "Too many requests",
				Action: "Wait a moment before trying again",
				Code:   "RATE001",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
