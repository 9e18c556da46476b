// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"budgetbook/internal/core"
	"budgetbook/internal/log"
	"budgetbook/internal/middleware/ratelimit"
	"budgetbook/internal/middleware/security"
)

// Ledger is the service surface the handlers call. *services.Ledger
// satisfies it.
type Ledger interface {
	Today() core.Date
	GenerateDue(ctx context.Context, today core.Date) (int, error)
	MonthSummary(ctx context.Context, year, month int) (core.MonthSummary, error)

	ListRules(ctx context.Context) ([]core.RecurringRule, error)
	CreateRule(ctx context.Context, actor string, rule core.RecurringRule) (core.RecurringRule, error)
	EditRule(ctx context.Context, actor string, id int64, edit core.RuleEdit) (core.RecurringRule, error)
	DeleteRule(ctx context.Context, actor string, id int64, cascade bool) error

	CreateEntry(ctx context.Context, actor string, e core.Entry) (core.Entry, error)
	EditEntry(ctx context.Context, actor string, id int64, edit core.EntryEdit) (core.Entry, error)
	DeleteEntry(ctx context.Context, actor string, id int64) error
	BulkDeleteEntries(ctx context.Context, actor string, ids []int64) (int, error)

	Settings(ctx context.Context) core.Settings
	SaveSettings(ctx context.Context, actor string, s core.Settings) (core.Settings, error)
}

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the server settings taken from the process configuration.
type Config struct {
	Addr               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	ledger      Ledger
	health      Pinger
	logger      *log.Logger
	clientIP    *security.ClientIP
	rateLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, ledger Ledger, health Pinger, logger *log.Logger) (*Server, error) {
	clientIP, err := security.NewClientIP(cfg.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:   ledger,
		health:   health,
		logger:   logger,
		clientIP: clientIP,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
	}
	s.Handler = s.routes(cfg)
	return s, nil
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.RequestLogger(s.logger, s.clientIP.Extract))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", headerUser, "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/expenses/month", s.handleMonthSummary)
		r.Get("/rules", s.handleListRules)
		r.Get("/settings", s.handleGetSettings)

		// Writes need an actor and are rate limited per client.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware(s.clientIP.Extract, rateLimited))
			r.Use(requireActor)

			r.Post("/rules", s.handleCreateRule)
			r.Patch("/rules/{id}", s.handleEditRule)
			r.Delete("/rules/{id}", s.handleDeleteRule)

			r.Post("/entries", s.handleCreateEntry)
			r.Patch("/entries/{id}", s.handleEditEntry)
			r.Delete("/entries/{id}", s.handleDeleteEntry)
			r.Post("/entries/bulk-delete", s.handleBulkDelete)

			r.Put("/settings", s.handleSaveSettings)
			r.Post("/recurring/generate", s.handleGenerate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
