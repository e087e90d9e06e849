//go:build integration

package ledger_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/bookledger/internal/ledger"
	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
	"github.com/odyssey-erp/bookledger/migrations"
)

var school = shared.PartyRef{Kind: shared.PartySchool, ID: 11}

func newPostgresLedger(t *testing.T) (*ledger.Services, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bookledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := db.NewMigrator(migrations.FS, dsn, ledgertest.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := db.New(ctx, dsn, db.PoolConfig{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return ledger.NewServices(ledger.Config{
		Pool:   pool,
		Tx:     db.NewTxManager(pool, 25),
		Logger: ledgertest.DiscardLogger(),
	}), pool
}

func currentYear() periods.RangeInput {
	year := time.Now().UTC().Year()
	return periods.RangeInput{
		Start: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func invoice(amount string) documents.CreateInput {
	return documents.CreateInput{
		Kind:  shared.KindInvoice,
		Party: school,
		Items: []documents.ItemInput{{Description: "Atlas", Quantity: 1, UnitPrice: decimal.RequireFromString(amount)}},
	}
}

func TestPostgresInvoiceThenPaymentStatement(t *testing.T) {
	svc, _ := newPostgresLedger(t)
	ctx := context.Background()

	p, err := svc.Periods.Create(ctx, currentYear())
	require.NoError(t, err)

	doc, err := svc.Documents.Create(ctx, invoice("5000"))
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Number)
	require.Len(t, doc.Items, 1)

	_, err = svc.Payments.Post(ctx, payments.PostInput{Party: school, Amount: decimal.RequireFromString("2000"), Mode: payments.ModeCash})
	require.NoError(t, err)

	st, err := svc.Statements.Statement(ctx, school, p.ID)
	require.NoError(t, err)
	require.Len(t, st.Rows, 2)
	require.Equal(t, "5000.00", st.Rows[0].Balance.StringFixed(2))
	require.Equal(t, "3000.00", st.ClosingBalance.StringFixed(2))

	reloaded, err := svc.Documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, doc.NetAmount.Equal(reloaded.NetAmount))
}

func TestPostgresConcurrentAllocationIsGapFree(t *testing.T) {
	svc, _ := newPostgresLedger(t)
	ctx := context.Background()

	_, err := svc.Periods.Create(ctx, currentYear())
	require.NoError(t, err)

	const writers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
		errs    []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := svc.Documents.Create(ctx, invoice(fmt.Sprintf("%d00", i+1)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, doc.Number)
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6}, numbers)

	scopes, err := svc.Scopes.ListForParty(ctx, school, activePeriodID(t, svc))
	require.NoError(t, err)
	require.Len(t, scopes, 1)
}

func activePeriodID(t *testing.T, svc *ledger.Services) int64 {
	t.Helper()
	p, err := svc.Periods.Active(context.Background())
	require.NoError(t, err)
	return p.ID
}

func TestPostgresPeriodConstraints(t *testing.T) {
	svc, _ := newPostgresLedger(t)
	ctx := context.Background()

	first, err := svc.Periods.Create(ctx, currentYear())
	require.NoError(t, err)

	overlap := currentYear()
	overlap.Start = overlap.Start.AddDate(0, 6, 0)
	overlap.End = overlap.End.AddDate(0, 6, 0)
	_, err = svc.Periods.Create(ctx, overlap)
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)

	next := currentYear()
	next.Start = next.Start.AddDate(1, 0, 0)
	next.End = next.End.AddDate(1, 0, 0)
	second, err := svc.Periods.Create(ctx, next)
	require.NoError(t, err)

	reloaded, err := svc.Periods.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, periods.StatusClosed, reloaded.Status)

	active, err := svc.Periods.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
}

func TestPostgresCreateRacingCloseNeverLandsInSettledScope(t *testing.T) {
	svc, pool := newPostgresLedger(t)
	ctx := context.Background()

	p, err := svc.Periods.Create(ctx, currentYear())
	require.NoError(t, err)
	_, err = svc.Documents.Create(ctx, invoice("100"))
	require.NoError(t, err)

	// Hold a close open, as the period service would mid-transaction.
	closing, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = closing.Rollback(ctx) }()
	_, err = closing.Exec(ctx, `UPDATE periods SET status = 'CLOSED', closed_at = NOW() WHERE id = $1`, p.ID)
	require.NoError(t, err)
	_, err = closing.Exec(ctx, `UPDATE ledger_scopes SET status = 'SETTLED', settled_at = NOW() WHERE period_id = $1`, p.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Documents.Create(ctx, invoice("200"))
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("create finished while the close was uncommitted: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	require.NoError(t, closing.Commit(ctx))

	select {
	case err := <-done:
		require.ErrorIs(t, err, shared.ErrNoActivePeriod)
	case <-time.After(10 * time.Second):
		t.Fatal("create did not resume after the close committed")
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE period_id = $1`, p.ID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestPostgresItemsReproduceTheirAmounts(t *testing.T) {
	svc, _ := newPostgresLedger(t)
	ctx := context.Background()

	_, err := svc.Periods.Create(ctx, currentYear())
	require.NoError(t, err)

	doc, err := svc.Documents.Create(ctx, documents.CreateInput{
		Kind:  shared.KindInvoice,
		Party: school,
		Items: []documents.ItemInput{{
			Description:     "Readers",
			Quantity:        3,
			UnitPrice:       decimal.RequireFromString("0.333"),
			DiscountPercent: decimal.RequireFromString("12.125"),
		}},
	})
	require.NoError(t, err)

	reloaded, err := svc.Documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	stored := reloaded.Items[0]
	require.True(t, stored.UnitPrice.Equal(decimal.RequireFromString("0.333")))
	require.True(t, stored.DiscountPercent.Equal(decimal.RequireFromString("12.125")))

	again, err := documents.ComputeLine(1, documents.ItemInput{
		Description:     stored.Description,
		Quantity:        stored.Quantity,
		UnitPrice:       stored.UnitPrice,
		DiscountPercent: stored.DiscountPercent,
	})
	require.NoError(t, err)
	require.True(t, again.GrossAmount.Equal(stored.GrossAmount))
	require.True(t, again.NetAmount.Equal(stored.NetAmount))
	require.Empty(t, documents.CheckTotals(reloaded))
}
