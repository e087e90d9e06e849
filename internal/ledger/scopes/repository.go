package scopes

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
)

// Repository persists scopes.
type Repository interface {
	ListForParty(ctx context.Context, party shared.PartyRef, periodID int64) ([]Scope, error)
	ListForPartyForShare(ctx context.Context, party shared.PartyRef, periodID int64) ([]Scope, error)
	Insert(ctx context.Context, s Scope) (Scope, error)
	SettleAll(ctx context.Context, at time.Time) (int64, error)
	SettleByPeriod(ctx context.Context, periodID int64, at time.Time) (int64, error)
	ReopenByPeriod(ctx context.Context, periodID int64) (int64, error)
}

const constraintSingleOpenScope = "ledger_scopes_single_open"

const scopeColumns = `id, party_kind, party_id, period_id, status, created_at, settled_at`

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(pool db.DBTX) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListForParty(ctx context.Context, party shared.PartyRef, periodID int64) ([]Scope, error) {
	return r.list(ctx, ``, party, periodID)
}

// ListForPartyForShare also share-locks the rows so settling waits for the
// caller's transaction.
func (r *PGRepository) ListForPartyForShare(ctx context.Context, party shared.PartyRef, periodID int64) ([]Scope, error) {
	return r.list(ctx, ` FOR SHARE`, party, periodID)
}

func (r *PGRepository) list(ctx context.Context, lock string, party shared.PartyRef, periodID int64) ([]Scope, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+scopeColumns+` FROM ledger_scopes
		WHERE party_kind = $1 AND party_id = $2 AND period_id = $3
		ORDER BY id`+lock, party.Kind, party.ID, periodID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Scope, error) {
		var s Scope
		err := row.Scan(&s.ID, &s.Party.Kind, &s.Party.ID, &s.PeriodID, &s.Status, &s.CreatedAt, &s.SettledAt)
		return s, err
	})
}

// Insert stores an OPEN scope. A concurrent insert for the same party and
// period surfaces as a retryable error so the whole transaction restarts and
// finds the winner's row.
func (r *PGRepository) Insert(ctx context.Context, s Scope) (Scope, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO ledger_scopes (party_kind, party_id, period_id, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`, s.Party.Kind, s.Party.ID, s.PeriodID, s.Status).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, constraintSingleOpenScope) {
			return Scope{}, db.Retryable(err)
		}
		return Scope{}, err
	}
	return s, nil
}

func (r *PGRepository) SettleAll(ctx context.Context, at time.Time) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE ledger_scopes SET status = 'SETTLED', settled_at = $1 WHERE status = 'OPEN'`, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) SettleByPeriod(ctx context.Context, periodID int64, at time.Time) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE ledger_scopes SET status = 'SETTLED', settled_at = $2 WHERE period_id = $1 AND status = 'OPEN'`, periodID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReopenByPeriod reopens the newest scope of each party in the period.
func (r *PGRepository) ReopenByPeriod(ctx context.Context, periodID int64) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE ledger_scopes SET status = 'OPEN', settled_at = NULL
		WHERE id IN (
			SELECT DISTINCT ON (party_kind, party_id) id FROM ledger_scopes
			WHERE period_id = $1
			ORDER BY party_kind, party_id, id DESC
		) AND status = 'SETTLED'`, periodID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
