package periods_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type recordingNotifier struct {
	mu     sync.Mutex
	closed []int64
}

func (n *recordingNotifier) PeriodClosed(_ context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, id)
	return nil
}

func openCount(l *ledgertest.Ledger) int {
	n := 0
	for _, p := range l.Store.AllPeriods() {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

func school(id int64) shared.PartyRef {
	return shared.PartyRef{Kind: shared.PartySchool, ID: id}
}

func TestCreateDerivesNameAndActivates(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	p, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)
	assert.Equal(t, "2024-25", p.Name)
	assert.Equal(t, periods.StatusOpen, p.Status)

	active, err := l.Periods.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, active.ID)
}

func TestActiveWithoutPeriods(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	_, err := l.Periods.Active(context.Background())
	require.ErrorIs(t, err, shared.ErrNoActivePeriod)
	kind, _ := shared.KindOf(err)
	assert.Equal(t, shared.KindNotFound, kind)
}

func TestCreateValidation(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	_, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2025, 3, 31), End: day(2024, 4, 1)})
	require.ErrorIs(t, err, shared.ErrInvalidRange)

	_, err = l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2024, 4, 1)})
	require.ErrorIs(t, err, shared.ErrInvalidRange)

	_, err = l.Periods.Create(ctx, periods.RangeInput{End: day(2024, 4, 1)})
	kind, _ := shared.KindOf(err)
	assert.Equal(t, shared.KindValidation, kind)
	assert.Zero(t, l.Store.Transactions())
}

func TestCreateRejectsOverlap(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	_, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)

	_, err = l.Periods.Create(ctx, periods.RangeInput{Start: day(2025, 3, 31), End: day(2026, 3, 31)})
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)
	assert.Len(t, l.Store.AllPeriods(), 1)
}

func TestCreateClosesPreviousAndSettlesScopes(t *testing.T) {
	notifier := &recordingNotifier{}
	l := ledgertest.NewLedger(ledgertest.Options{Notifier: notifier})
	ctx := context.Background()

	first, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	_, err = l.Scopes.GetOrCreateOpen(ctx, school(1), first.ID)
	require.NoError(t, err)

	second, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)

	old, err := l.Periods.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, periods.StatusClosed, old.Status)
	require.NotNil(t, old.ClosedAt)
	assert.Equal(t, 1, openCount(l))

	for _, sc := range l.Store.AllScopes() {
		assert.Equal(t, scopes.StatusSettled, sc.Status)
	}
	assert.Equal(t, []int64{first.ID}, notifier.closed)

	active, err := l.Periods.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestCloseCascadesOnlyToOwnScopes(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	old, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	cur, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)

	// Bring the old period back so it has an OPEN scope of its own, then
	// switch to the current one again.
	_, err = l.Periods.Open(ctx, old.ID)
	require.NoError(t, err)
	oldScope, err := l.Scopes.GetOrCreateOpen(ctx, school(9), old.ID)
	require.NoError(t, err)
	_, err = l.Periods.Open(ctx, cur.ID)
	require.NoError(t, err)
	curScope, err := l.Scopes.GetOrCreateOpen(ctx, school(9), cur.ID)
	require.NoError(t, err)

	_, err = l.Periods.Close(ctx, cur.ID)
	require.NoError(t, err)
	assert.Zero(t, openCount(l))

	for _, sc := range l.Store.AllScopes() {
		switch sc.ID {
		case curScope.ID:
			assert.Equal(t, scopes.StatusSettled, sc.Status)
		case oldScope.ID:
			assert.Equal(t, scopes.StatusSettled, sc.Status, "settled earlier by Open, untouched by Close")
		}
	}

	_, err = l.Periods.Close(ctx, cur.ID)
	require.ErrorIs(t, err, shared.ErrPeriodNotOpen)

	_, err = l.Periods.Close(ctx, 999)
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestCloseLeavesOtherPeriodScopesUntouched(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	old, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	cur, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)

	// A scope of another period that is still OPEN must survive Close.
	foreign, err := l.Store.Scopes().Insert(ctx, scopes.Scope{Party: school(3), PeriodID: old.ID, Status: scopes.StatusOpen})
	require.NoError(t, err)
	own, err := l.Scopes.GetOrCreateOpen(ctx, school(3), cur.ID)
	require.NoError(t, err)

	_, err = l.Periods.Close(ctx, cur.ID)
	require.NoError(t, err)

	byID := map[int64]scopes.Scope{}
	for _, sc := range l.Store.AllScopes() {
		byID[sc.ID] = sc
	}
	assert.Equal(t, scopes.StatusSettled, byID[own.ID].Status)
	assert.Equal(t, scopes.StatusOpen, byID[foreign.ID].Status)
}

func TestOpenResurrectsHistoricalPeriod(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	old, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	oldScope, err := l.Scopes.GetOrCreateOpen(ctx, school(1), old.ID)
	require.NoError(t, err)

	cur, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)
	curScope, err := l.Scopes.GetOrCreateOpen(ctx, school(1), cur.ID)
	require.NoError(t, err)

	reopened, err := l.Periods.Open(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, periods.StatusOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
	assert.Equal(t, 1, openCount(l))

	for _, sc := range l.Store.AllScopes() {
		switch sc.ID {
		case oldScope.ID:
			assert.Equal(t, scopes.StatusOpen, sc.Status)
		case curScope.ID:
			assert.Equal(t, scopes.StatusSettled, sc.Status)
		}
	}
}

func TestUpdateRequiresOpenAndRechecksOverlap(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	old, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	cur, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)

	_, err = l.Periods.Update(ctx, old.ID, periods.RangeInput{Start: day(2023, 1, 1), End: day(2023, 12, 31)})
	require.ErrorIs(t, err, shared.ErrPeriodNotOpen)

	_, err = l.Periods.Update(ctx, cur.ID, periods.RangeInput{Start: day(2024, 3, 1), End: day(2025, 3, 31)})
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)

	updated, err := l.Periods.Update(ctx, cur.ID, periods.RangeInput{Start: day(2024, 6, 1), End: day(2026, 5, 31)})
	require.NoError(t, err)
	assert.Equal(t, "2024-26", updated.Name)
	assert.True(t, updated.StartDate.Equal(day(2024, 6, 1)))
}

func TestFailedTransitionLeavesNoPartialCascade(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	first, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	_, err = l.Scopes.GetOrCreateOpen(ctx, school(1), first.ID)
	require.NoError(t, err)

	boom := errors.New("disk full")
	l.Store.FailOn("periods.insert", boom)
	_, err = l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.ErrorIs(t, err, boom)

	active, err := l.Periods.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
	for _, sc := range l.Store.AllScopes() {
		assert.Equal(t, scopes.StatusOpen, sc.Status)
	}
	assert.Len(t, l.Store.AllPeriods(), 1)
}

func TestSingleActivePeriodUnderConcurrency(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		p, err := l.Periods.Create(ctx, periods.RangeInput{
			Start: day(2020+i, 4, 1),
			End:   day(2021+i, 3, 31),
		})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[i%len(ids)]
			if i%3 == 0 {
				_, _ = l.Periods.Close(ctx, id)
				return
			}
			_, _ = l.Periods.Open(ctx, id)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, openCount(l), 1)
	all := l.Store.AllPeriods()
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			assert.False(t, all[i].Overlaps(all[j].StartDate, all[j].EndDate))
		}
	}
}

func TestAuditTrailForTransitions(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	p, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)
	_, err = l.Periods.Close(ctx, p.ID)
	require.NoError(t, err)

	var actions []string
	for _, entry := range l.Store.AuditLogs() {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{"period.create", "period.close"}, actions)
}

type transitionCounter struct{ actions []string }

func (c *transitionCounter) PeriodTransition(action string) { c.actions = append(c.actions, action) }

func TestTransitionsAreCountedAfterCommit(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	counter := &transitionCounter{}
	l.Periods.WithMetrics(counter)
	ctx := context.Background()

	first, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 4, 1), End: day(2024, 3, 31)})
	require.NoError(t, err)
	_, err = l.Periods.Create(ctx, periods.RangeInput{Start: day(2023, 6, 1), End: day(2023, 9, 30)})
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)
	_, err = l.Periods.Close(ctx, first.ID)
	require.NoError(t, err)
	_, err = l.Periods.Open(ctx, first.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "close", "open"}, counter.actions)
}

func TestTransitionsRunAtReadCommitted(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{})
	ctx := context.Background()

	p, err := l.Periods.Create(ctx, periods.RangeInput{Start: day(2024, 4, 1), End: day(2025, 3, 31)})
	require.NoError(t, err)
	_, err = l.Periods.Close(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, []pgx.TxIsoLevel{pgx.ReadCommitted, pgx.ReadCommitted}, l.Store.Isolations())
}
