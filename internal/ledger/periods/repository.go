package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
)

// Repository persists periods. Every method joins the transaction carried by ctx.
type Repository interface {
	Lock(ctx context.Context) error
	FindActive(ctx context.Context) (Period, error)
	FindActiveForShare(ctx context.Context) (Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context) ([]Period, error)
	HasOverlap(ctx context.Context, start, end time.Time, excludeID int64) (bool, error)
	Insert(ctx context.Context, p Period) (Period, error)
	CloseAllOpen(ctx context.Context, at time.Time) ([]int64, error)
	SetStatus(ctx context.Context, id int64, status Status, closedAt *time.Time) error
	UpdateRange(ctx context.Context, id int64, name string, start, end time.Time) (Period, error)
}

// registryLockKey serialises period transitions across sessions.
const registryLockKey int64 = 0x6c65646765720001

const (
	constraintSingleOpen = "periods_single_open"
	constraintNoOverlap  = "periods_no_overlap"
)

const periodColumns = `id, name, start_date, end_date, status, closed_at, created_at, updated_at`

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(pool db.DBTX) *PGRepository {
	return &PGRepository{pool: pool}
}

// Lock takes the transaction-scoped registry lock.
func (r *PGRepository) Lock(ctx context.Context) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, registryLockKey)
	return err
}

// FindActive returns the single OPEN period.
func (r *PGRepository) FindActive(ctx context.Context) (Period, error) {
	return r.findActive(ctx, `SELECT `+periodColumns+` FROM periods WHERE status = 'OPEN' LIMIT 1`)
}

// FindActiveForShare returns the OPEN period and share-locks its row until the
// transaction ends. A concurrent close blocks on the lock, and one that already
// committed fails the repeatable-read transaction with a serialization error.
func (r *PGRepository) FindActiveForShare(ctx context.Context) (Period, error) {
	return r.findActive(ctx, `SELECT `+periodColumns+` FROM periods WHERE status = 'OPEN' LIMIT 1 FOR SHARE`)
}

func (r *PGRepository) findActive(ctx context.Context, query string) (Period, error) {
	p, err := scanPeriod(db.Conn(ctx, r.pool).QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrNoActivePeriod
	}
	return p, err
}

// Get loads a period by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Period, error) {
	return r.get(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1`, id)
}

// GetForUpdate locks the period row for the rest of the transaction.
func (r *PGRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return r.get(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, query string, id int64) (Period, error) {
	p, err := scanPeriod(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, err
}

// List returns every period, newest first.
func (r *PGRepository) List(ctx context.Context) ([]Period, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HasOverlap reports whether any other period intersects [start, end].
func (r *PGRepository) HasOverlap(ctx context.Context, start, end time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM periods WHERE start_date <= $2 AND end_date >= $1 AND id <> $3
	)`, start, end, excludeID).Scan(&exists)
	return exists, err
}

// Insert stores a new period.
func (r *PGRepository) Insert(ctx context.Context, p Period) (Period, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO periods (name, start_date, end_date, status, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		p.Name, p.StartDate, p.EndDate, p.Status, p.ClosedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Period{}, mapConstraint(err)
	}
	return p, nil
}

// CloseAllOpen closes every OPEN period and returns the affected ids.
func (r *PGRepository) CloseAllOpen(ctx context.Context, at time.Time) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `UPDATE periods SET status = 'CLOSED', closed_at = $1, updated_at = $1
		WHERE status = 'OPEN' RETURNING id`, at)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// SetStatus rewrites the status and closed_at of one period.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status, closedAt *time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE periods SET status = $2, closed_at = $3, updated_at = NOW() WHERE id = $1`, id, status, closedAt)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

// UpdateRange rewrites the date range and name.
func (r *PGRepository) UpdateRange(ctx context.Context, id int64, name string, start, end time.Time) (Period, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `UPDATE periods SET name = $2, start_date = $3, end_date = $4, updated_at = NOW()
		WHERE id = $1 RETURNING `+periodColumns, id, name, start, end)
	p, err := scanPeriod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	if err != nil {
		return Period{}, mapConstraint(err)
	}
	return p, nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func mapConstraint(err error) error {
	switch {
	case db.IsUniqueViolation(err, constraintSingleOpen):
		return fmt.Errorf("%w: %v", shared.ErrConcurrentActivation, err)
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%w: %v", shared.ErrPeriodOverlap, err)
	}
	return err
}
