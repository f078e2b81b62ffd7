// Package http exposes the JSON API: auth, categories, expenses with
// receipt uploads, budgets, the dashboard and CSV export.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kharcha/internal/receipts"
	"kharcha/internal/services"
	"kharcha/internal/storage"
)

type Server struct {
	http.Server

	users      *services.UserService
	categories *services.CategoryService
	expenses   *services.ExpenseService
	budgets    *services.BudgetService
	export     *services.ExportService
	evaluator  *services.Evaluator
	receipts   *receipts.Store
	store      *storage.SQLiteRepository

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Deps collects the collaborators the server needs. All fields are
// required.
type Deps struct {
	Users      *services.UserService
	Categories *services.CategoryService
	Expenses   *services.ExpenseService
	Budgets    *services.BudgetService
	Export     *services.ExportService
	Evaluator  *services.Evaluator
	Receipts   *receipts.Store
	Store      *storage.SQLiteRepository
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		users:       deps.Users,
		categories:  deps.Categories,
		expenses:    deps.Expenses,
		budgets:     deps.Budgets,
		export:      deps.Export,
		evaluator:   deps.Evaluator,
		receipts:    deps.Receipts,
		store:       deps.Store,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /api/register", s.withMiddleware(s.handleRegister))
	mux.HandleFunc("POST /api/login", s.withMiddleware(s.handleLogin))
	mux.HandleFunc("POST /api/logout", s.withMiddleware(s.requireUser(s.handleLogout)))

	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.requireUser(s.handleListCategories)))
	mux.HandleFunc("POST /api/categories", s.withMiddleware(s.requireUser(s.handleCreateCategory)))

	mux.HandleFunc("GET /api/expenses", s.withMiddleware(s.requireUser(s.handleListExpenses)))
	mux.HandleFunc("POST /api/expenses", s.withMiddleware(s.requireUser(s.handleCreateExpense)))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withMiddleware(s.requireUser(s.handleUpdateExpense)))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withMiddleware(s.requireUser(s.handleDeleteExpense)))
	mux.HandleFunc("GET /api/receipts/{ref}", s.withMiddleware(s.requireUser(s.handleGetReceipt)))

	mux.HandleFunc("GET /api/budgets", s.withMiddleware(s.requireUser(s.handleListBudgets)))
	mux.HandleFunc("PUT /api/budgets", s.withMiddleware(s.requireUser(s.handleUpsertBudget)))
	mux.HandleFunc("PUT /api/budgets/{id}", s.withMiddleware(s.requireUser(s.handleUpdateBudget)))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.withMiddleware(s.requireUser(s.handleDeleteBudget)))

	mux.HandleFunc("GET /api/dashboard", s.withMiddleware(s.requireUser(s.handleDashboard)))
	mux.HandleFunc("GET /api/export.csv", s.withMiddleware(s.requireUser(s.handleExportCSV)))

	return s
}

// Shutdown stops the rate limiter's cleanup goroutine and drains the HTTP
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds request-id tracing, request logging, security
// headers and rate limiting on mutating methods.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
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
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
