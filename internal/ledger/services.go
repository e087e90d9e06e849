package ledger

import (
	"log/slog"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/statements"
	"github.com/odyssey-erp/bookledger/internal/observability"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
	platformshared "github.com/odyssey-erp/bookledger/internal/shared"
)

// Config carries the infrastructure the ledger services run on.
type Config struct {
	Pool     db.DBTX
	Tx       db.Transactor
	Cache    *statements.Cache
	Notifier periods.Notifier
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Services is the assembled ledger backed by PostgreSQL.
type Services struct {
	Periods     *periods.Service
	Scopes      *scopes.Service
	Sequences   *sequences.Service
	Documents   *documents.Service
	Payments    *payments.Service
	Statements  *statements.Service
	Idempotency *platformshared.IdempotencyStore
}

// NewServices wires the PostgreSQL repositories into the ledger services.
func NewServices(cfg Config) *Services {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := platformshared.NewAuditLogger(cfg.Pool)
	idempotency := platformshared.NewIdempotencyStore(cfg.Pool)

	scopeSvc := scopes.NewService(scopes.NewRepository(cfg.Pool), logger)
	periodSvc := periods.NewService(periods.NewRepository(cfg.Pool), scopeSvc, cfg.Tx, audit, cfg.Notifier, logger).
		WithMetrics(cfg.Metrics)
	seqSvc := sequences.NewService(sequences.NewRepository(cfg.Pool), periodSvc)
	docSvc := documents.NewService(documents.Deps{
		Repo:        documents.NewRepository(cfg.Pool),
		Tx:          cfg.Tx,
		Periods:     periodSvc,
		Scopes:      scopeSvc,
		Numbers:     seqSvc,
		Audit:       audit,
		Idempotency: idempotency,
		Statements:  cfg.Cache,
		Metrics:     cfg.Metrics,
		Logger:      logger,
	})
	paySvc := payments.NewService(payments.Deps{
		Repo:        payments.NewRepository(cfg.Pool),
		Tx:          cfg.Tx,
		Periods:     periodSvc,
		Scopes:      scopeSvc,
		Numbers:     seqSvc,
		Audit:       audit,
		Idempotency: idempotency,
		Statements:  cfg.Cache,
		Metrics:     cfg.Metrics,
		Logger:      logger,
	})
	stmtSvc := statements.NewService(periodSvc, scopeSvc, docSvc, paySvc, cfg.Cache, cfg.Metrics, logger)

	return &Services{
		Periods:     periodSvc,
		Scopes:      scopeSvc,
		Sequences:   seqSvc,
		Documents:   docSvc,
		Payments:    paySvc,
		Statements:  stmtSvc,
		Idempotency: idempotency,
	}
}
