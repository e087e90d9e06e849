// Package ledgertest provides an in-memory ledger store for tests. It honours
// the same constraints as the PostgreSQL schema and rolls every change back
// when a transaction function fails.
package ledgertest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
	platformshared "github.com/odyssey-erp/bookledger/internal/shared"
)

type seqKey struct {
	periodID int64
	kind     shared.DocumentKind
}

type state struct {
	nextID      int64
	periods     map[int64]periods.Period
	scopes      map[int64]scopes.Scope
	sequences   map[seqKey]int64
	documents   map[int64]documents.Document
	payments    map[int64]payments.Payment
	audit       []platformshared.AuditLog
	idempotency map[string]struct{}
}

func newState() state {
	return state{
		periods:     map[int64]periods.Period{},
		scopes:      map[int64]scopes.Scope{},
		sequences:   map[seqKey]int64{},
		documents:   map[int64]documents.Document{},
		payments:    map[int64]payments.Payment{},
		idempotency: map[string]struct{}{},
	}
}

func (s state) clone() state {
	out := state{
		nextID:      s.nextID,
		periods:     make(map[int64]periods.Period, len(s.periods)),
		scopes:      make(map[int64]scopes.Scope, len(s.scopes)),
		sequences:   make(map[seqKey]int64, len(s.sequences)),
		documents:   make(map[int64]documents.Document, len(s.documents)),
		payments:    make(map[int64]payments.Payment, len(s.payments)),
		audit:       slices.Clone(s.audit),
		idempotency: make(map[string]struct{}, len(s.idempotency)),
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.scopes {
		out.scopes[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.documents {
		v.Items = slices.Clone(v.Items)
		out.documents[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k := range s.idempotency {
		out.idempotency[k] = struct{}{}
	}
	return out
}

type txKey struct{}

// Store is an in-memory implementation of every ledger repository.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
	now  func() time.Time

	failures map[string]error
	txCount  int
	levels   []pgx.TxIsoLevel
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now, failures: map[string]error{}}
}

// WithNow overrides the clock used for created_at columns.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

// FailOn makes the next call of op return err. Ops are named
// "<table>.<method>", e.g. "documents.insert".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// WithTx serialises transactions and restores the previous state when fn
// fails. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.txCount++
	s.levels = append(s.levels, db.IsolationFrom(ctx))
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Isolations returns the level each top-level transaction asked for, in order.
func (s *Store) Isolations() []pgx.TxIsoLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pgx.TxIsoLevel(nil), s.levels...)
}

// Transactions returns how many top-level transactions were started.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

func (s *Store) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

// Record implements shared.Auditor.
func (s *Store) Record(_ context.Context, log platformshared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("audit.record"); err != nil {
		return err
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return fmt.Errorf("audit log requires action/entity/entity_id")
	}
	s.st.audit = append(s.st.audit, log)
	return nil
}

// AuditLogs returns the committed audit entries.
func (s *Store) AuditLogs() []platformshared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.audit)
}

// CheckAndInsert implements shared.IdempotencyGuard.
func (s *Store) CheckAndInsert(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := module + "\x00" + key
	if _, ok := s.st.idempotency[k]; ok {
		return platformshared.ErrIdempotencyConflict
	}
	s.st.idempotency[k] = struct{}{}
	return nil
}

// LastNumber exposes a sequence counter.
func (s *Store) LastNumber(periodID int64, kind shared.DocumentKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.sequences[seqKey{periodID, kind}]
}

// AllPeriods returns every period ordered by id.
func (s *Store) AllPeriods() []periods.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]periods.Period, 0, len(s.st.periods))
	for _, p := range s.st.periods {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b periods.Period) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// AllScopes returns every scope ordered by id.
func (s *Store) AllScopes() []scopes.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scopes.Scope, 0, len(s.st.scopes))
	for _, sc := range s.st.scopes {
		out = append(out, sc)
	}
	slices.SortFunc(out, func(a, b scopes.Scope) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// AllDocuments returns every document ordered by id.
func (s *Store) AllDocuments() []documents.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]documents.Document, 0, len(s.st.documents))
	for _, d := range s.st.documents {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b documents.Document) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Periods returns the periods.Repository view.
func (s *Store) Periods() *PeriodRepo { return &PeriodRepo{s} }

// Scopes returns the scopes.Repository view.
func (s *Store) Scopes() *ScopeRepo { return &ScopeRepo{s} }

// Sequences returns the sequences.Repository view.
func (s *Store) Sequences() *SequenceRepo { return &SequenceRepo{s} }

// Documents returns the documents.Repository view.
func (s *Store) Documents() *DocumentRepo { return &DocumentRepo{s} }

// Payments returns the payments.Repository view.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s} }
