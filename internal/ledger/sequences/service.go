// Package sequences allocates gap-tolerant, collision-free document numbers
// per period and kind.
package sequences

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Sequence is one counter row.
type Sequence struct {
	PeriodID   int64               `json:"periodId"`
	Kind       shared.DocumentKind `json:"kind"`
	LastNumber int64               `json:"lastNumber"`
}

// Preview describes the number the next allocation would hand out.
type Preview struct {
	PeriodID   int64               `json:"periodId"`
	PeriodName string              `json:"periodName"`
	Kind       shared.DocumentKind `json:"kind"`
	NextNumber int64               `json:"nextNumber"`
	DocumentNo string              `json:"documentNo"`
}

// ActivePeriod resolves the OPEN period.
type ActivePeriod interface {
	Active(ctx context.Context) (periods.Period, error)
}

// Service wraps the counter repository.
type Service struct {
	repo    Repository
	periods ActivePeriod
}

// NewService constructs a Service.
func NewService(repo Repository, periods ActivePeriod) *Service {
	return &Service{repo: repo, periods: periods}
}

// Allocate hands out the next number for (periodID, kind). It must run inside
// the transaction that consumes the number. An explicit number raises the
// counter to max(last, explicit) without ever lowering it.
func (s *Service) Allocate(ctx context.Context, periodID int64, kind shared.DocumentKind, explicit *int64) (int64, error) {
	if !kind.Valid() {
		return 0, shared.ErrInvalidKind
	}
	if explicit == nil {
		return s.repo.Next(ctx, periodID, kind)
	}
	if *explicit <= 0 {
		return 0, shared.ErrInvalidExplicitNumber
	}
	return s.repo.Raise(ctx, periodID, kind, *explicit)
}

// Peek returns last+1 without touching the counter.
func (s *Service) Peek(ctx context.Context, periodID int64, kind shared.DocumentKind) (int64, error) {
	if !kind.Valid() {
		return 0, shared.ErrInvalidKind
	}
	last, err := s.repo.Last(ctx, periodID, kind)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// PeekActive previews the next number of kind in the active period.
func (s *Service) PeekActive(ctx context.Context, kind shared.DocumentKind) (Preview, error) {
	if !kind.Valid() {
		return Preview{}, shared.ErrInvalidKind
	}
	p, err := s.periods.Active(ctx)
	if err != nil {
		return Preview{}, err
	}
	next, err := s.Peek(ctx, p.ID, kind)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		PeriodID:   p.ID,
		PeriodName: p.Name,
		Kind:       kind,
		NextNumber: next,
		DocumentNo: Format(kind, p.Name, next),
	}, nil
}

// List returns the counters of a period.
func (s *Service) List(ctx context.Context, periodID int64) ([]Sequence, error) {
	return s.repo.List(ctx, periodID)
}

// Format renders a human document number, e.g. INV/2024-25/0007.
func Format(kind shared.DocumentKind, periodName string, n int64) string {
	return fmt.Sprintf("%s/%s/%04d", kind.Prefix(), periodName, n)
}
