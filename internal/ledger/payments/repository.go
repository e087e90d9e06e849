package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
)

// Repository persists payments.
type Repository interface {
	Insert(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
	GetForUpdate(ctx context.Context, id int64) (Payment, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	ListByScopes(ctx context.Context, scopeIDs []int64, status Status) ([]Payment, error)
}

const constraintReceiptNumber = "payments_period_number_key"

const paymentColumns = `id, receipt_no, number, party_kind, party_id, scope_id, period_id, pay_date, amount, mode, status,
	reference, note, recorded_by_kind, recorded_by_id, created_at`

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(pool db.DBTX) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, p Payment) (Payment, error) {
	var recKind *shared.PartyKind
	var recID *int64
	if p.RecordedBy != nil {
		recKind = &p.RecordedBy.Kind
		recID = &p.RecordedBy.ID
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO payments (receipt_no, number, party_kind, party_id, scope_id, period_id,
		pay_date, amount, mode, status, reference, note, recorded_by_kind, recorded_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id, created_at`,
		p.ReceiptNo, p.Number, p.Party.Kind, p.Party.ID, p.ScopeID, p.PeriodID,
		p.Date, p.Amount, p.Mode, p.Status, p.Reference, p.Note, recKind, recID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, constraintReceiptNumber) {
			return Payment{}, fmt.Errorf("%w: %s", shared.ErrDuplicateDocumentNo, p.ReceiptNo)
		}
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PGRepository) GetForUpdate(ctx context.Context, id int64) (Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, query string, id int64) (Payment, error) {
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrPaymentNotFound
	}
	return p, err
}

func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPaymentNotFound
	}
	return nil
}

func (r *PGRepository) ListByScopes(ctx context.Context, scopeIDs []int64, status Status) ([]Payment, error) {
	if len(scopeIDs) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE scope_id = ANY($1) AND status = $2
		ORDER BY pay_date, created_at, id`, scopeIDs, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		return scanPayment(row)
	})
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p       Payment
		recKind *string
		recID   *int64
	)
	err := row.Scan(&p.ID, &p.ReceiptNo, &p.Number, &p.Party.Kind, &p.Party.ID, &p.ScopeID, &p.PeriodID,
		&p.Date, &p.Amount, &p.Mode, &p.Status, &p.Reference, &p.Note, &recKind, &recID, &p.CreatedAt)
	if err != nil {
		return Payment{}, err
	}
	if recKind != nil && recID != nil {
		p.RecordedBy = &shared.PartyRef{Kind: shared.PartyKind(*recKind), ID: *recID}
	}
	return p, nil
}
