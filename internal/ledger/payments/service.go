package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
	platformshared "github.com/odyssey-erp/bookledger/internal/shared"
)

const idempotencyModule = "payments"

// PeriodResolver resolves the active period and holds it open until the
// transaction ends.
type PeriodResolver interface {
	ActiveForWrite(ctx context.Context) (periods.Period, error)
}

// ScopeResolver hands out the OPEN scope of a party.
type ScopeResolver interface {
	GetOrCreateOpen(ctx context.Context, party shared.PartyRef, periodID int64) (scopes.Scope, error)
}

// NumberAllocator allocates receipt numbers.
type NumberAllocator interface {
	Allocate(ctx context.Context, periodID int64, kind shared.DocumentKind, explicit *int64) (int64, error)
}

// StatementInvalidator drops cached statements touched by a write.
type StatementInvalidator interface {
	Invalidate(ctx context.Context, party shared.PartyRef, periodID int64) error
}

// Metrics receives payment counters.
type Metrics interface {
	PaymentPosted(mode string, amount float64)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo        Repository
	Tx          db.Transactor
	Periods     PeriodResolver
	Scopes      ScopeResolver
	Numbers     NumberAllocator
	Audit       platformshared.Auditor
	Idempotency platformshared.IdempotencyGuard
	Statements  StatementInvalidator
	Metrics     Metrics
	Logger      *slog.Logger
}

// Service posts and voids payments.
type Service struct {
	repo        Repository
	tx          db.Transactor
	periods     PeriodResolver
	scopes      ScopeResolver
	numbers     NumberAllocator
	audit       platformshared.Auditor
	idempotency platformshared.IdempotencyGuard
	statements  StatementInvalidator
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		tx:          deps.Tx,
		periods:     deps.Periods,
		scopes:      deps.Scopes,
		numbers:     deps.Numbers,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		statements:  deps.Statements,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Post records a payment against the party's open scope in the active period.
func (s *Service) Post(ctx context.Context, in PostInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	mode, _ := ParseMode(string(in.Mode))
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	y, m, d := date.Date()
	date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var out Payment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule)
			if errors.Is(err, platformshared.ErrIdempotencyConflict) {
				return shared.ErrReplayedRequest
			}
			if err != nil {
				return err
			}
		}
		period, err := s.periods.ActiveForWrite(ctx)
		if err != nil {
			return err
		}
		scope, err := s.scopes.GetOrCreateOpen(ctx, in.Party, period.ID)
		if err != nil {
			return err
		}
		number, err := s.numbers.Allocate(ctx, period.ID, shared.KindPayment, in.ExplicitNumber)
		if err != nil {
			return err
		}
		out, err = s.repo.Insert(ctx, Payment{
			ReceiptNo:  sequences.Format(shared.KindPayment, period.Name, number),
			Number:     number,
			Party:      in.Party,
			ScopeID:    scope.ID,
			PeriodID:   period.ID,
			Date:       date,
			Amount:     shared.Round2(in.Amount),
			Mode:       mode,
			Status:     StatusPosted,
			Reference:  in.Reference,
			Note:       in.Note,
			RecordedBy: in.RecordedBy,
		})
		if err != nil {
			return err
		}
		return s.record(ctx, "payment.post", out.ID, map[string]any{
			"receipt_no": out.ReceiptNo,
			"amount":     out.Amount.StringFixed(2),
			"mode":       out.Mode,
		})
	})
	if err != nil {
		return Payment{}, err
	}

	s.invalidate(ctx, out)
	if s.metrics != nil {
		s.metrics.PaymentPosted(string(out.Mode), out.Amount.InexactFloat64())
	}
	s.logger.Info("payment posted",
		slog.Int64("payment_id", out.ID),
		slog.String("receipt_no", out.ReceiptNo),
		slog.String("party", out.Party.String()))
	return out, nil
}

// Void flips a POSTED payment to VOID.
func (s *Service) Void(ctx context.Context, id int64) (Payment, error) {
	var out Payment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if out.Status != StatusPosted {
			return fmt.Errorf("%w: payment %s is %s", shared.ErrInvalidStatus, out.ReceiptNo, out.Status)
		}
		if err := s.repo.SetStatus(ctx, id, StatusVoid); err != nil {
			return err
		}
		out.Status = StatusVoid
		return s.record(ctx, "payment.void", id, map[string]any{"receipt_no": out.ReceiptNo})
	})
	if err != nil {
		return Payment{}, err
	}
	s.invalidate(ctx, out)
	return out, nil
}

// Get loads one payment.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

// ListForStatement returns the POSTED payments of the scopes.
func (s *Service) ListForStatement(ctx context.Context, scopeIDs []int64) ([]Payment, error) {
	return s.repo.ListByScopes(ctx, scopeIDs, StatusPosted)
}

func (s *Service) invalidate(ctx context.Context, p Payment) {
	if s.statements == nil {
		return
	}
	if err := s.statements.Invalidate(ctx, p.Party, p.PeriodID); err != nil {
		s.logger.Warn("statement cache invalidation failed",
			slog.String("party", p.Party.String()),
			slog.Int64("period_id", p.PeriodID),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, platformshared.AuditLog{
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
