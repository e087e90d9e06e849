package ledgertest

import (
	"io"
	"log/slog"
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/statements"
)

// Ledger wires every ledger service on top of one Store.
type Ledger struct {
	Store      *Store
	Periods    *periods.Service
	Scopes     *scopes.Service
	Sequences  *sequences.Service
	Documents  *documents.Service
	Payments   *payments.Service
	Statements *statements.Service
}

// Options tunes NewLedger.
type Options struct {
	Now      func() time.Time
	Notifier periods.Notifier
	Cache    *statements.Cache
}

// DiscardLogger drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewLedger builds services backed by a fresh in-memory store.
func NewLedger(opts Options) *Ledger {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := DiscardLogger()
	store := NewStore().WithNow(now)

	scopeSvc := scopes.NewService(store.Scopes(), logger)
	periodSvc := periods.NewService(store.Periods(), scopeSvc, store, store, opts.Notifier, logger).WithNow(now)
	seqSvc := sequences.NewService(store.Sequences(), periodSvc)
	docSvc := documents.NewService(documents.Deps{
		Repo:        store.Documents(),
		Tx:          store,
		Periods:     periodSvc,
		Scopes:      scopeSvc,
		Numbers:     seqSvc,
		Audit:       store,
		Idempotency: store,
		Statements:  opts.Cache,
		Logger:      logger,
	}).WithNow(now)
	paySvc := payments.NewService(payments.Deps{
		Repo:        store.Payments(),
		Tx:          store,
		Periods:     periodSvc,
		Scopes:      scopeSvc,
		Numbers:     seqSvc,
		Audit:       store,
		Idempotency: store,
		Statements:  opts.Cache,
		Logger:      logger,
	}).WithNow(now)
	stmtSvc := statements.NewService(periodSvc, scopeSvc, docSvc, paySvc, opts.Cache, nil, logger)

	return &Ledger{
		Store:      store,
		Periods:    periodSvc,
		Scopes:     scopeSvc,
		Sequences:  seqSvc,
		Documents:  docSvc,
		Payments:   paySvc,
		Statements: stmtSvc,
	}
}
