package periods

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
	platformshared "github.com/odyssey-erp/bookledger/internal/shared"
)

// ScopeSettler mirrors period transitions onto ledger scopes.
type ScopeSettler interface {
	SettleAll(ctx context.Context) error
	SettleByPeriod(ctx context.Context, periodID int64) error
	ReopenByPeriod(ctx context.Context, periodID int64) error
}

// Notifier is told about periods that were closed once the transition commits.
type Notifier interface {
	PeriodClosed(ctx context.Context, periodID int64) error
}

// Metrics counts committed transitions.
type Metrics interface {
	PeriodTransition(action string)
}

// Service owns the period lifecycle.
type Service struct {
	repo     Repository
	scopes   ScopeSettler
	tx       db.Transactor
	audit    platformshared.Auditor
	notifier Notifier
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the registry service. audit and notifier may be nil.
func NewService(repo Repository, scopes ScopeSettler, tx db.Transactor, audit platformshared.Auditor, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		scopes:   scopes,
		tx:       tx,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithMetrics attaches transition counters.
func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// Active returns the single OPEN period.
func (s *Service) Active(ctx context.Context) (Period, error) {
	return s.repo.FindActive(ctx)
}

// ActiveForWrite returns the OPEN period locked against transitions for the
// rest of the caller's transaction. Writers attach rows to it with this.
func (s *Service) ActiveForWrite(ctx context.Context) (Period, error) {
	return s.repo.FindActiveForShare(ctx)
}

// Get loads one period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// List returns every period, newest first.
func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// Create inserts a new OPEN period, closing whichever period was open and
// settling every open scope.
func (s *Service) Create(ctx context.Context, in RangeInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	in = in.normalised()

	var (
		created Period
		closed  []int64
	)
	err := s.tx.WithTx(transitionCtx(ctx), func(ctx context.Context) error {
		if err := s.repo.Lock(ctx); err != nil {
			return err
		}
		overlap, err := s.repo.HasOverlap(ctx, in.Start, in.End, 0)
		if err != nil {
			return err
		}
		if overlap {
			return shared.ErrPeriodOverlap
		}
		now := s.now().UTC()
		closed, err = s.repo.CloseAllOpen(ctx, now)
		if err != nil {
			return err
		}
		if err := s.scopes.SettleAll(ctx); err != nil {
			return err
		}
		created, err = s.repo.Insert(ctx, Period{
			Name:      Name(in.Start, in.End),
			StartDate: in.Start,
			EndDate:   in.End,
			Status:    StatusOpen,
		})
		if err != nil {
			return err
		}
		return s.record(ctx, "period.create", created.ID, map[string]any{
			"name":   created.Name,
			"closed": closed,
		})
	})
	if err != nil {
		return Period{}, err
	}

	s.logger.Info("period opened",
		slog.Int64("period_id", created.ID),
		slog.String("name", created.Name),
		slog.Int("closed", len(closed)))
	s.transitioned("create")
	s.notifyClosed(ctx, closed...)
	return created, nil
}

// Close transitions an OPEN period to CLOSED and settles its scopes.
func (s *Service) Close(ctx context.Context, id int64) (Period, error) {
	var out Period
	err := s.tx.WithTx(transitionCtx(ctx), func(ctx context.Context) error {
		if err := s.repo.Lock(ctx); err != nil {
			return err
		}
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return shared.ErrPeriodNotOpen
		}
		now := s.now().UTC()
		if err := s.repo.SetStatus(ctx, id, StatusClosed, &now); err != nil {
			return err
		}
		if err := s.scopes.SettleByPeriod(ctx, id); err != nil {
			return err
		}
		p.Status = StatusClosed
		p.ClosedAt = &now
		out = p
		return s.record(ctx, "period.close", id, map[string]any{"name": p.Name})
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period closed", slog.Int64("period_id", id))
	s.transitioned("close")
	s.notifyClosed(ctx, id)
	return out, nil
}

// Open makes id the active period regardless of its current status. Every
// other period is closed and every scope settled before the target and its
// scopes are reopened.
func (s *Service) Open(ctx context.Context, id int64) (Period, error) {
	var (
		out    Period
		closed []int64
	)
	err := s.tx.WithTx(transitionCtx(ctx), func(ctx context.Context) error {
		if err := s.repo.Lock(ctx); err != nil {
			return err
		}
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		closed, err = s.repo.CloseAllOpen(ctx, now)
		if err != nil {
			return err
		}
		if err := s.scopes.SettleAll(ctx); err != nil {
			return err
		}
		if err := s.repo.SetStatus(ctx, id, StatusOpen, nil); err != nil {
			return err
		}
		if err := s.scopes.ReopenByPeriod(ctx, id); err != nil {
			return err
		}
		p.Status = StatusOpen
		p.ClosedAt = nil
		out = p
		return s.record(ctx, "period.open", id, map[string]any{"name": p.Name})
	})
	if err != nil {
		return Period{}, err
	}

	others := closed[:0]
	for _, c := range closed {
		if c != id {
			others = append(others, c)
		}
	}
	s.logger.Info("period reopened", slog.Int64("period_id", id))
	s.transitioned("open")
	s.notifyClosed(ctx, others...)
	return out, nil
}

// Update rewrites the range and name of the OPEN period.
func (s *Service) Update(ctx context.Context, id int64, in RangeInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	in = in.normalised()

	var out Period
	err := s.tx.WithTx(transitionCtx(ctx), func(ctx context.Context) error {
		if err := s.repo.Lock(ctx); err != nil {
			return err
		}
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return shared.ErrPeriodNotOpen
		}
		overlap, err := s.repo.HasOverlap(ctx, in.Start, in.End, id)
		if err != nil {
			return err
		}
		if overlap {
			return shared.ErrPeriodOverlap
		}
		out, err = s.repo.UpdateRange(ctx, id, Name(in.Start, in.End), in.Start, in.End)
		if err != nil {
			return err
		}
		return s.record(ctx, "period.update", id, map[string]any{
			"from": p.Name,
			"to":   out.Name,
		})
	})
	if err != nil {
		return Period{}, err
	}
	s.transitioned("update")
	return out, nil
}

// transitionCtx runs period transitions at ReadCommitted so the reads after
// the registry lock see whatever the previous holder committed.
func transitionCtx(ctx context.Context) context.Context {
	return db.WithIsolation(ctx, pgx.ReadCommitted)
}

func (s *Service) transitioned(action string) {
	if s.metrics != nil {
		s.metrics.PeriodTransition(action)
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, platformshared.AuditLog{
		Action:   action,
		Entity:   "period",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) notifyClosed(ctx context.Context, ids ...int64) {
	if s.notifier == nil {
		return
	}
	for _, id := range ids {
		if err := s.notifier.PeriodClosed(ctx, id); err != nil {
			s.logger.Warn("period close notification failed",
				slog.Int64("period_id", id),
				slog.Any("error", err))
		}
	}
}
