package sequences

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
)

// Repository persists per-(period, kind) counters.
type Repository interface {
	// Next increments the counter and returns the new value.
	Next(ctx context.Context, periodID int64, kind shared.DocumentKind) (int64, error)
	// Raise moves the counter to max(current, n) and returns it.
	Raise(ctx context.Context, periodID int64, kind shared.DocumentKind, n int64) (int64, error)
	// Last returns the current counter, zero when the row does not exist yet.
	Last(ctx context.Context, periodID int64, kind shared.DocumentKind) (int64, error)
	// List returns every counter of a period.
	List(ctx context.Context, periodID int64) ([]Sequence, error)
}

// PGRepository stores counters in document_sequences. The upsert holds the row
// lock until the surrounding transaction ends.
type PGRepository struct {
	pool db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(pool db.DBTX) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Next(ctx context.Context, periodID int64, kind shared.DocumentKind) (int64, error) {
	var n int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO document_sequences (period_id, kind, last_number, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (period_id, kind) DO UPDATE
		SET last_number = document_sequences.last_number + 1, updated_at = NOW()
		RETURNING last_number`, periodID, kind).Scan(&n)
	return n, err
}

func (r *PGRepository) Raise(ctx context.Context, periodID int64, kind shared.DocumentKind, n int64) (int64, error) {
	var out int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO document_sequences (period_id, kind, last_number, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (period_id, kind) DO UPDATE
		SET last_number = GREATEST(document_sequences.last_number, EXCLUDED.last_number), updated_at = NOW()
		RETURNING last_number`, periodID, kind, n).Scan(&out)
	return out, err
}

func (r *PGRepository) Last(ctx context.Context, periodID int64, kind shared.DocumentKind) (int64, error) {
	var n int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT last_number FROM document_sequences WHERE period_id = $1 AND kind = $2`, periodID, kind).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (r *PGRepository) List(ctx context.Context, periodID int64) ([]Sequence, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT period_id, kind, last_number FROM document_sequences WHERE period_id = $1 ORDER BY kind`, periodID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Sequence, error) {
		var s Sequence
		err := row.Scan(&s.PeriodID, &s.Kind, &s.LastNumber)
		return s, err
	})
}
