package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/bookledger/internal/auth"
	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/statements"
	"github.com/odyssey-erp/bookledger/internal/observability"
	"github.com/odyssey-erp/bookledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Auth              auth.Middleware
	PeriodsService    *periods.Service
	SequenceHandler   *sequences.Handler
	DocumentHandler   *documents.Handler
	PaymentHandler    *payments.Handler
	StatementHandler  *statements.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	DisableRequestLog bool
}

// NewRouter constructs the chi.Router with the ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !params.DisableRequestLog {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Authenticate)
		if params.PeriodsService != nil {
			periods.NewHandler(params.Logger, params.PeriodsService, params.Auth.RequireRole(auth.RoleAdmin)).MountRoutes(r)
		}
		if params.SequenceHandler != nil {
			params.SequenceHandler.MountRoutes(r)
		}
		if params.DocumentHandler != nil {
			params.DocumentHandler.MountRoutes(r)
		}
		if params.PaymentHandler != nil {
			params.PaymentHandler.MountRoutes(r)
		}
		if params.StatementHandler != nil {
			params.StatementHandler.MountRoutes(r)
		}
	})

	return r
}
