package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor runs fn so that every repository call made with the supplied
// context joins the same transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type (
	txKey        struct{}
	isolationKey struct{}
)

// WithIsolation asks the next top-level transaction started with ctx to run at
// level instead of RepeatableRead. Nested calls keep the outer level.
func WithIsolation(ctx context.Context, level pgx.TxIsoLevel) context.Context {
	return context.WithValue(ctx, isolationKey{}, level)
}

// IsolationFrom returns the level requested through WithIsolation, defaulting
// to RepeatableRead.
func IsolationFrom(ctx context.Context) pgx.TxIsoLevel {
	if level, ok := ctx.Value(isolationKey{}).(pgx.TxIsoLevel); ok && level != "" {
		return level
	}
	return pgx.RepeatableRead
}

// Conn returns the transaction bound to ctx, falling back to fallback.
func Conn(ctx context.Context, fallback DBTX) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return tx
	}
	return fallback
}

// InTx reports whether ctx already carries a transaction.
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok && tx != nil
}

// TxManager opens RepeatableRead transactions, unless WithIsolation says
// otherwise, and retries them on serialization failures.
type TxManager struct {
	pool        *pgxpool.Pool
	maxAttempts int
	onRetry     func(attempt int, err error)
}

// NewTxManager constructs a TxManager. maxAttempts below one is treated as one.
func NewTxManager(pool *pgxpool.Pool, maxAttempts int) *TxManager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TxManager{pool: pool, maxAttempts: maxAttempts}
}

// OnRetry registers a hook invoked before every retried attempt.
func (m *TxManager) OnRetry(fn func(attempt int, err error)) {
	m.onRetry = fn
}

// WithTx executes fn within a transaction using the RepeatableRead isolation
// level. Nested calls reuse the outer transaction.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt == m.maxAttempts {
			return err
		}
		if m.onRetry != nil {
			m.onRetry(attempt, err)
		}
	}
	return err
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if m == nil || m.pool == nil {
		return errors.New("platform/db: transaction manager not initialised")
	}
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: IsolationFrom(ctx)})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
