package scopes

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Service resolves and transitions scopes. It never opens a transaction on its
// own; callers pass a context bound to theirs.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// GetOrCreateOpen returns the OPEN scope of party in periodID, creating it on
// first use. A party whose only scope is SETTLED gets ErrPeriodClosed. The
// scope rows stay share-locked until the caller's transaction ends.
func (s *Service) GetOrCreateOpen(ctx context.Context, party shared.PartyRef, periodID int64) (Scope, error) {
	if err := party.Validate(); err != nil {
		return Scope{}, err
	}
	existing, err := s.repo.ListForPartyForShare(ctx, party, periodID)
	if err != nil {
		return Scope{}, err
	}
	for _, sc := range existing {
		if sc.Status == StatusOpen {
			return sc, nil
		}
	}
	if len(existing) > 0 {
		return Scope{}, shared.ErrPeriodClosed
	}
	created, err := s.repo.Insert(ctx, Scope{Party: party, PeriodID: periodID, Status: StatusOpen})
	if err != nil {
		return Scope{}, err
	}
	s.logger.Debug("ledger scope created",
		slog.String("party", party.String()),
		slog.Int64("period_id", periodID),
		slog.Int64("scope_id", created.ID))
	return created, nil
}

// ListForParty returns every scope of party in periodID regardless of status.
func (s *Service) ListForParty(ctx context.Context, party shared.PartyRef, periodID int64) ([]Scope, error) {
	if err := party.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListForParty(ctx, party, periodID)
}

// SettleAll settles every OPEN scope.
func (s *Service) SettleAll(ctx context.Context) error {
	n, err := s.repo.SettleAll(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	s.logger.Debug("ledger scopes settled", slog.Int64("count", n))
	return nil
}

// SettleByPeriod settles the OPEN scopes of one period and nothing else.
func (s *Service) SettleByPeriod(ctx context.Context, periodID int64) error {
	n, err := s.repo.SettleByPeriod(ctx, periodID, s.now().UTC())
	if err != nil {
		return err
	}
	s.logger.Debug("ledger scopes settled", slog.Int64("period_id", periodID), slog.Int64("count", n))
	return nil
}

// ReopenByPeriod reopens the scopes of one period.
func (s *Service) ReopenByPeriod(ctx context.Context, periodID int64) error {
	n, err := s.repo.ReopenByPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	s.logger.Debug("ledger scopes reopened", slog.Int64("period_id", periodID), slog.Int64("count", n))
	return nil
}
