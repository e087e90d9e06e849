package documents

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

const idempotencyModule = "documents"

// PeriodResolver resolves the active period and holds it open until the
// transaction ends.
type PeriodResolver interface {
	ActiveForWrite(ctx context.Context) (periods.Period, error)
}

// ScopeResolver hands out the OPEN scope of a party.
type ScopeResolver interface {
	GetOrCreateOpen(ctx context.Context, party shared.PartyRef, periodID int64) (scopes.Scope, error)
}

// NumberAllocator allocates document numbers.
type NumberAllocator interface {
	Allocate(ctx context.Context, periodID int64, kind shared.DocumentKind, explicit *int64) (int64, error)
}

// StatementInvalidator drops cached statements touched by a write.
type StatementInvalidator interface {
	Invalidate(ctx context.Context, party shared.PartyRef, periodID int64) error
}

// Metrics receives document counters.
type Metrics interface {
	DocumentIssued(kind string)
	DocumentVoided(kind string)
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

// Service issues and transitions documents.
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

// NewService constructs a Service. Audit, Idempotency, Statements and Metrics
// are optional.
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

// Create validates and computes the lines, then resolves the active period,
// the party's scope and the next number and persists the document, all in one
// transaction. A missing period is reported ahead of a non-positive total.
func (s *Service) Create(ctx context.Context, in CreateInput) (Document, error) {
	if err := in.Validate(); err != nil {
		return Document{}, err
	}
	items, totals, err := computeLines(in.Items)
	if err != nil {
		return Document{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	date = calendarDay(date)

	var doc Document
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.claim(ctx, in.IdempotencyKey); err != nil {
			return err
		}
		period, err := s.periods.ActiveForWrite(ctx)
		if err != nil {
			return err
		}
		if err := totals.RequirePositive(); err != nil {
			return err
		}
		if !period.Contains(date) {
			s.logger.Warn("document dated outside active period",
				slog.String("date", date.Format(time.DateOnly)),
				slog.String("period", period.Name))
		}
		doc, err = s.issue(ctx, period, Document{
			Kind:          in.Kind,
			Status:        StatusIssued,
			Date:          date,
			Party:         in.Party,
			BilledBy:      in.BilledBy,
			Notes:         in.Notes,
			TotalQuantity: totals.Quantity,
			GrossAmount:   totals.Gross,
			TotalDiscount: totals.Discount,
			NetAmount:     totals.Net,
			Items:         items,
		}, in.ExplicitNumber)
		return err
	})
	if err != nil {
		return Document{}, err
	}

	s.afterWrite(ctx, doc)
	if s.metrics != nil {
		s.metrics.DocumentIssued(string(doc.Kind))
	}
	s.logger.Info("document issued",
		slog.Int64("document_id", doc.ID),
		slog.String("document_no", doc.DocumentNo),
		slog.String("party", doc.Party.String()))
	return doc, nil
}

// issue attaches doc to the party's open scope, numbers it and stores it.
func (s *Service) issue(ctx context.Context, period periods.Period, doc Document, explicit *int64) (Document, error) {
	scope, err := s.scopes.GetOrCreateOpen(ctx, doc.Party, period.ID)
	if err != nil {
		return Document{}, err
	}
	number, err := s.numbers.Allocate(ctx, period.ID, doc.Kind, explicit)
	if err != nil {
		return Document{}, err
	}
	doc.ScopeID = scope.ID
	doc.PeriodID = period.ID
	doc.Number = number
	doc.DocumentNo = sequences.Format(doc.Kind, period.Name, number)

	doc, err = s.repo.Insert(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	if err := s.record(ctx, "document.create", doc.ID, map[string]any{
		"kind":        doc.Kind,
		"document_no": doc.DocumentNo,
		"net":         doc.NetAmount.StringFixed(2),
	}); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Void flips an ISSUED invoice or credit note to VOID. The number stays
// consumed. Voiding is allowed after the period closed.
func (s *Service) Void(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Kind == shared.KindEstimation {
			return shared.ErrEstimationNotVoidable
		}
		if doc.Status != StatusIssued {
			return fmt.Errorf("%w: document %s is %s", shared.ErrInvalidStatus, doc.DocumentNo, doc.Status)
		}
		if err := s.repo.SetStatus(ctx, id, StatusVoid); err != nil {
			return err
		}
		doc.Status = StatusVoid
		return s.record(ctx, "document.void", id, map[string]any{"document_no": doc.DocumentNo})
	})
	if err != nil {
		return Document{}, err
	}
	s.afterWrite(ctx, doc)
	if s.metrics != nil {
		s.metrics.DocumentVoided(string(doc.Kind))
	}
	return doc, nil
}

// DeleteEstimation removes an estimation that was never converted.
func (s *Service) DeleteEstimation(ctx context.Context, id int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Kind != shared.KindEstimation {
			return shared.ErrNotEstimation
		}
		if doc.Converted() {
			return shared.ErrEstimationConverted
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, "document.delete", id, map[string]any{"document_no": doc.DocumentNo})
	})
}

// ConvertEstimation issues an invoice in the active period carrying the
// estimation's lines and marks the estimation converted.
func (s *Service) ConvertEstimation(ctx context.Context, id int64, billedBy *shared.PartyRef) (Document, error) {
	if billedBy != nil {
		if err := billedBy.Validate(); err != nil {
			return Document{}, err
		}
	}
	var invoice Document
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		est, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if est.Kind != shared.KindEstimation {
			return shared.ErrNotEstimation
		}
		if est.Converted() {
			return shared.ErrEstimationConverted
		}
		items, totals, err := ComputeItems(inputsFrom(est.Items))
		if err != nil {
			return err
		}
		period, err := s.periods.ActiveForWrite(ctx)
		if err != nil {
			return err
		}
		if billedBy == nil {
			billedBy = est.BilledBy
		}
		sourceID := est.ID
		invoice, err = s.issue(ctx, period, Document{
			Kind:          shared.KindInvoice,
			Status:        StatusIssued,
			Date:          calendarDay(s.now()),
			Party:         est.Party,
			BilledBy:      billedBy,
			Notes:         est.Notes,
			SourceID:      &sourceID,
			TotalQuantity: totals.Quantity,
			GrossAmount:   totals.Gross,
			TotalDiscount: totals.Discount,
			NetAmount:     totals.Net,
			Items:         items,
		}, nil)
		if err != nil {
			return err
		}
		if err := s.repo.MarkConverted(ctx, est.ID, invoice.ID); err != nil {
			return err
		}
		return s.record(ctx, "document.convert", est.ID, map[string]any{
			"estimation_no": est.DocumentNo,
			"invoice_no":    invoice.DocumentNo,
		})
	})
	if err != nil {
		return Document{}, err
	}
	s.afterWrite(ctx, invoice)
	if s.metrics != nil {
		s.metrics.DocumentIssued(string(invoice.Kind))
	}
	return invoice, nil
}

// Get loads a document with its items.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// ListForStatement returns the ISSUED invoices and credit notes of the scopes.
func (s *Service) ListForStatement(ctx context.Context, scopeIDs []int64) ([]Document, error) {
	return s.repo.ListByScopes(ctx, scopeIDs, []shared.DocumentKind{shared.KindInvoice, shared.KindCreditNote}, StatusIssued)
}

// ListByPeriod returns every document of a period with items.
func (s *Service) ListByPeriod(ctx context.Context, periodID int64) ([]Document, error) {
	return s.repo.ListByPeriod(ctx, periodID)
}

func (s *Service) claim(ctx context.Context, key string) error {
	if key == "" || s.idempotency == nil {
		return nil
	}
	err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
	if errors.Is(err, platformshared.ErrIdempotencyConflict) {
		return shared.ErrReplayedRequest
	}
	return err
}

func (s *Service) afterWrite(ctx context.Context, doc Document) {
	if s.statements == nil || doc.Kind == shared.KindEstimation {
		return
	}
	if err := s.statements.Invalidate(ctx, doc.Party, doc.PeriodID); err != nil {
		s.logger.Warn("statement cache invalidation failed",
			slog.String("party", doc.Party.String()),
			slog.Int64("period_id", doc.PeriodID),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, platformshared.AuditLog{
		Action:   action,
		Entity:   "document",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
