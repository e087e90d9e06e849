package sequences_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

func newLedger(t *testing.T) (*ledgertest.Ledger, periods.Period) {
	t.Helper()
	l := ledgertest.NewLedger(ledgertest.Options{})
	p, err := l.Periods.Create(context.Background(), periods.RangeInput{
		Start: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return l, p
}

func ptr(n int64) *int64 { return &n }

func TestAllocateIsMonotonic(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		n, err := l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, nil)
		require.NoError(t, err)
		assert.Greater(t, n, last)
		last = n
	}
	assert.Equal(t, int64(5), last)

	// Kinds have independent counters.
	n, err := l.Sequences.Allocate(ctx, p.ID, shared.KindCreditNote, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestExplicitNumberNeverRegresses(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	n, err := l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, ptr(120))
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)

	n, err = l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(121), n)

	// A lower explicit number keeps the counter where it is.
	n, err = l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, ptr(7))
	require.NoError(t, err)
	assert.Equal(t, int64(121), n)
	assert.Equal(t, int64(121), l.Store.LastNumber(p.ID, shared.KindInvoice))

	n, err = l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(122), n)
}

func TestAllocateRejectsBadInput(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	_, err := l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, ptr(0))
	require.ErrorIs(t, err, shared.ErrInvalidExplicitNumber)

	_, err = l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, ptr(-3))
	require.ErrorIs(t, err, shared.ErrInvalidExplicitNumber)

	_, err = l.Sequences.Allocate(ctx, p.ID, shared.DocumentKind("ORDER"), nil)
	require.ErrorIs(t, err, shared.ErrInvalidKind)
	assert.Zero(t, l.Store.LastNumber(p.ID, shared.KindInvoice))
}

func TestPeekNeverMutates(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		next, err := l.Sequences.Peek(ctx, p.ID, shared.KindEstimation)
		require.NoError(t, err)
		assert.Equal(t, int64(1), next)
	}
	assert.Zero(t, l.Store.LastNumber(p.ID, shared.KindEstimation))

	_, err := l.Sequences.Allocate(ctx, p.ID, shared.KindEstimation, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		next, err := l.Sequences.Peek(ctx, p.ID, shared.KindEstimation)
		require.NoError(t, err)
		assert.Equal(t, int64(2), next)
	}
	assert.Equal(t, int64(1), l.Store.LastNumber(p.ID, shared.KindEstimation))
}

func TestPeekActiveFormatsNumber(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	preview, err := l.Sequences.PeekActive(ctx, shared.KindPayment)
	require.NoError(t, err)
	assert.Equal(t, p.ID, preview.PeriodID)
	assert.Equal(t, int64(1), preview.NextNumber)
	assert.Equal(t, "RCPT/2024-25/0001", preview.DocumentNo)
}

func TestPeekActiveWithoutPeriod(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	_, err := l.Sequences.PeekActive(context.Background(), shared.KindInvoice)
	require.ErrorIs(t, err, shared.ErrNoActivePeriod)
}

func TestAllocationRollsBackWithTransaction(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	err := l.Store.WithTx(ctx, func(ctx context.Context) error {
		_, err := l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, nil)
		require.NoError(t, err)
		return shared.Conflict("abort")
	})
	require.Error(t, err)
	assert.Zero(t, l.Store.LastNumber(p.ID, shared.KindInvoice))
}

func TestConcurrentAllocationsAreUnique(t *testing.T) {
	l, p := newLedger(t)
	ctx := context.Background()

	const workers = 50
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Store.WithTx(ctx, func(ctx context.Context) error {
				n, err := l.Sequences.Allocate(ctx, p.ID, shared.KindInvoice, nil)
				if err != nil {
					return err
				}
				results <- n
				return nil
			})
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for n := range results {
		assert.False(t, seen[n], "number %d handed out twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
	assert.Equal(t, int64(workers), l.Store.LastNumber(p.ID, shared.KindInvoice))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "INV/2024-25/0007", sequences.Format(shared.KindInvoice, "2024-25", 7))
	assert.Equal(t, "EST/2024-25/0012", sequences.Format(shared.KindEstimation, "2024-25", 12))
	assert.Equal(t, "CN/2024-25/12345", sequences.Format(shared.KindCreditNote, "2024-25", 12345))
}
