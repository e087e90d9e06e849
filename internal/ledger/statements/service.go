package statements

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// PeriodResolver resolves the period a statement covers.
type PeriodResolver interface {
	Active(ctx context.Context) (periods.Period, error)
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// ScopeLister lists a party's scopes in a period.
type ScopeLister interface {
	ListForParty(ctx context.Context, party shared.PartyRef, periodID int64) ([]scopes.Scope, error)
}

// DocumentLister loads the ISSUED invoices and credit notes of scopes.
type DocumentLister interface {
	ListForStatement(ctx context.Context, scopeIDs []int64) ([]documents.Document, error)
}

// PaymentLister loads the POSTED payments of scopes.
type PaymentLister interface {
	ListForStatement(ctx context.Context, scopeIDs []int64) ([]payments.Payment, error)
}

// Metrics receives cache outcome counters.
type Metrics interface {
	StatementServed(source string)
}

// Service builds statements, serving repeats from the cache.
type Service struct {
	periods   PeriodResolver
	scopes    ScopeLister
	documents DocumentLister
	payments  PaymentLister
	cache     *Cache
	metrics   Metrics
	logger    *slog.Logger
	group     singleflight.Group
}

// NewService constructs a Service. cache and metrics may be nil.
func NewService(periods PeriodResolver, scopes ScopeLister, docs DocumentLister, pays PaymentLister, cache *Cache, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		periods:   periods,
		scopes:    scopes,
		documents: docs,
		payments:  pays,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// Statement returns the statement of party for periodID, or for the active
// period when periodID is zero.
func (s *Service) Statement(ctx context.Context, party shared.PartyRef, periodID int64) (Statement, error) {
	if err := party.Validate(); err != nil {
		return Statement{}, err
	}
	if periodID < 0 {
		return Statement{}, shared.Validation("ledger: invalid period id")
	}
	var (
		period periods.Period
		err    error
	)
	if periodID == 0 {
		period, err = s.periods.Active(ctx)
	} else {
		period, err = s.periods.Get(ctx, periodID)
	}
	if err != nil {
		return Statement{}, err
	}

	key, err := s.cache.BuildKey(ctx, party, period.ID)
	if err != nil {
		s.logger.Warn("statement cache unavailable", slog.Any("error", err))
		return s.build(ctx, party, period.ID)
	}

	// The build is shared by every caller of key, so it must outlive the
	// caller that started it.
	buildCtx := context.WithoutCancel(ctx)
	res := s.group.DoChan(key, func() (any, error) {
		var st Statement
		hit, err := s.cache.FetchJSON(buildCtx, key, &st, func(ctx context.Context) (any, error) {
			return s.build(ctx, party, period.ID)
		})
		if err != nil {
			return nil, err
		}
		s.served(hit)
		return st, nil
	})
	select {
	case <-ctx.Done():
		return Statement{}, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return Statement{}, r.Err
		}
		return r.Val.(Statement), nil
	}
}

func (s *Service) build(ctx context.Context, party shared.PartyRef, periodID int64) (Statement, error) {
	list, err := s.scopes.ListForParty(ctx, party, periodID)
	if err != nil {
		return Statement{}, err
	}
	if len(list) == 0 {
		st := Build(party, nil, nil)
		st.PeriodID = periodID
		return st, nil
	}
	ids := scopes.IDs(list)
	docs, err := s.documents.ListForStatement(ctx, ids)
	if err != nil {
		return Statement{}, err
	}
	pays, err := s.payments.ListForStatement(ctx, ids)
	if err != nil {
		return Statement{}, err
	}
	st := Build(party, docs, pays)
	st.PeriodID = periodID
	return st, nil
}

func (s *Service) served(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.StatementServed("cache")
		return
	}
	s.metrics.StatementServed("build")
}
