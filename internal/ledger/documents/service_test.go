package documents_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

var (
	schoolA = shared.PartyRef{Kind: shared.PartySchool, ID: 1}
	company = shared.PartyRef{Kind: shared.PartyCompany, ID: 7}
	clock   = func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }
)

func setup(t *testing.T) (*ledgertest.Ledger, periods.Period) {
	t.Helper()
	l := ledgertest.NewLedger(ledgertest.Options{Now: clock})
	p, err := l.Periods.Create(context.Background(), periods.RangeInput{
		Start: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return l, p
}

func invoiceInput(kind shared.DocumentKind) documents.CreateInput {
	return documents.CreateInput{
		Kind:     kind,
		Party:    schoolA,
		BilledBy: &company,
		Items: []documents.ItemInput{
			{Description: "Maths Grade 5", Quantity: 10, UnitPrice: decimal.RequireFromString("450"), DiscountPercent: decimal.RequireFromString("10")},
			{Description: "Science Grade 5", Quantity: 5, UnitPrice: decimal.RequireFromString("199.50")},
		},
	}
}

func TestCreateIssuesNumberedDocument(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	doc, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)
	assert.Equal(t, "INV/2024-25/0001", doc.DocumentNo)
	assert.Equal(t, int64(1), doc.Number)
	assert.Equal(t, p.ID, doc.PeriodID)
	assert.Equal(t, documents.StatusIssued, doc.Status)
	assert.Equal(t, int64(15), doc.TotalQuantity)
	assert.Equal(t, "5497.50", doc.GrossAmount.StringFixed(2))
	assert.Equal(t, "450.00", doc.TotalDiscount.StringFixed(2))
	assert.Equal(t, "5047.50", doc.NetAmount.StringFixed(2))
	assert.True(t, doc.Date.Equal(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))

	stored, err := l.Documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Empty(t, documents.CheckTotals(stored))

	second, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)
	assert.Equal(t, "INV/2024-25/0002", second.DocumentNo)
	assert.Equal(t, doc.ScopeID, second.ScopeID)
}

func TestCreateWithoutActivePeriod(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{Now: clock})
	_, err := l.Documents.Create(context.Background(), invoiceInput(shared.KindInvoice))
	require.ErrorIs(t, err, shared.ErrNoActivePeriod)
}

func TestCreateValidatesBeforeTransaction(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	before := l.Store.Transactions()

	in := invoiceInput(shared.KindInvoice)
	in.Items = nil
	_, err := l.Documents.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrNoItems)

	in = invoiceInput(shared.KindInvoice)
	in.Items[1].Quantity = 0
	_, err = l.Documents.Create(ctx, in)
	kind, _ := shared.KindOf(err)
	assert.Equal(t, shared.KindValidation, kind)

	in = invoiceInput(shared.KindPayment)
	_, err = l.Documents.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidKind)

	assert.Equal(t, before, l.Store.Transactions())
}

func TestCreateRejectsNonPositiveTotal(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	in := invoiceInput(shared.KindInvoice)
	in.Items = []documents.ItemInput{{Description: "Sample", Quantity: 1, UnitPrice: decimal.Zero}}
	_, err := l.Documents.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrNonPositiveTotal)
	kind, _ := shared.KindOf(err)
	assert.Equal(t, shared.KindIntegrity, kind)

	assert.Empty(t, l.Store.AllDocuments())
	assert.Empty(t, l.Store.AllScopes())
	assert.Zero(t, l.Store.LastNumber(p.ID, shared.KindInvoice))
}

func TestCreateWithoutActivePeriodReportedBeforeTotal(t *testing.T) {
	l := ledgertest.NewLedger(ledgertest.Options{Now: clock})
	in := invoiceInput(shared.KindInvoice)
	in.Items = []documents.ItemInput{{Description: "Sample", Quantity: 1, UnitPrice: decimal.Zero}}
	_, err := l.Documents.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrNoActivePeriod)
}

func TestCreateRollsBackOnInsertFailure(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	boom := errors.New("connection reset")
	l.Store.FailOn("documents.insert", boom)
	_, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.ErrorIs(t, err, boom)

	assert.Zero(t, l.Store.LastNumber(p.ID, shared.KindInvoice))
	assert.Empty(t, l.Store.AllScopes())
	assert.Empty(t, l.Store.AuditLogs()[1:], "only the period creation is audited")

	doc, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)
	assert.Equal(t, "INV/2024-25/0001", doc.DocumentNo)
}

func TestCreateWithExplicitNumber(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	in := invoiceInput(shared.KindInvoice)
	n := int64(57)
	in.ExplicitNumber = &n
	doc, err := l.Documents.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "INV/2024-25/0057", doc.DocumentNo)

	next, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)
	assert.Equal(t, int64(58), next.Number)

	// A number below the counter resolves to the counter, which is already taken.
	_, err = l.Documents.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrDuplicateDocumentNo)
	assert.Len(t, l.Store.AllDocuments(), 2)
}

func TestCreateInClosedPeriodScope(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	_, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)
	require.NoError(t, l.Scopes.SettleByPeriod(ctx, p.ID))

	_, err = l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	assert.Equal(t, int64(1), l.Store.LastNumber(p.ID, shared.KindInvoice))
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	in := invoiceInput(shared.KindInvoice)
	in.IdempotencyKey = "req-42"
	_, err := l.Documents.Create(ctx, in)
	require.NoError(t, err)

	_, err = l.Documents.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrReplayedRequest)
	assert.Len(t, l.Store.AllDocuments(), 1)
}

func TestVoid(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	doc, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)

	voided, err := l.Documents.Void(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusVoid, voided.Status)
	assert.Equal(t, doc.DocumentNo, voided.DocumentNo)
	assert.Equal(t, int64(1), l.Store.LastNumber(p.ID, shared.KindInvoice))

	_, err = l.Documents.Void(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	est, err := l.Documents.Create(ctx, invoiceInput(shared.KindEstimation))
	require.NoError(t, err)
	_, err = l.Documents.Void(ctx, est.ID)
	require.ErrorIs(t, err, shared.ErrEstimationNotVoidable)

	_, err = l.Documents.Void(ctx, 4242)
	require.ErrorIs(t, err, shared.ErrDocumentNotFound)
}

func TestDeleteEstimation(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	est, err := l.Documents.Create(ctx, invoiceInput(shared.KindEstimation))
	require.NoError(t, err)
	assert.Equal(t, "EST/2024-25/0001", est.DocumentNo)

	inv, err := l.Documents.Create(ctx, invoiceInput(shared.KindInvoice))
	require.NoError(t, err)
	require.ErrorIs(t, l.Documents.DeleteEstimation(ctx, inv.ID), shared.ErrNotEstimation)

	require.NoError(t, l.Documents.DeleteEstimation(ctx, est.ID))
	_, err = l.Documents.Get(ctx, est.ID)
	require.ErrorIs(t, err, shared.ErrDocumentNotFound)
}

func TestConvertEstimation(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	est, err := l.Documents.Create(ctx, invoiceInput(shared.KindEstimation))
	require.NoError(t, err)

	inv, err := l.Documents.ConvertEstimation(ctx, est.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, shared.KindInvoice, inv.Kind)
	assert.Equal(t, "INV/2024-25/0001", inv.DocumentNo)
	assert.True(t, inv.NetAmount.Equal(est.NetAmount))
	require.NotNil(t, inv.SourceID)
	assert.Equal(t, est.ID, *inv.SourceID)
	assert.Equal(t, company, *inv.BilledBy)
	assert.Len(t, inv.Items, len(est.Items))

	stored, err := l.Documents.Get(ctx, est.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ConvertedToID)
	assert.Equal(t, inv.ID, *stored.ConvertedToID)

	_, err = l.Documents.ConvertEstimation(ctx, est.ID, nil)
	require.ErrorIs(t, err, shared.ErrEstimationConverted)
	require.ErrorIs(t, l.Documents.DeleteEstimation(ctx, est.ID), shared.ErrEstimationConverted)

	_, err = l.Documents.ConvertEstimation(ctx, inv.ID, nil)
	require.ErrorIs(t, err, shared.ErrNotEstimation)
}

func TestConvertRollsBackWhenMarkFails(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	est, err := l.Documents.Create(ctx, invoiceInput(shared.KindEstimation))
	require.NoError(t, err)

	boom := errors.New("lost connection")
	l.Store.FailOn("documents.mark_converted", boom)
	_, err = l.Documents.ConvertEstimation(ctx, est.ID, nil)
	require.ErrorIs(t, err, boom)

	assert.Len(t, l.Store.AllDocuments(), 1)
	assert.Zero(t, l.Store.LastNumber(p.ID, shared.KindInvoice))
}

func TestPersistedDocumentsKeepNetInvariant(t *testing.T) {
	l, p := setup(t)
	ctx := context.Background()

	prices := []string{"0.01", "12.345", "99.995", "1000", "3.333"}
	for i, price := range prices {
		_, err := l.Documents.Create(ctx, documents.CreateInput{
			Kind:  shared.KindCreditNote,
			Party: schoolA,
			Items: []documents.ItemInput{{
				Description:     "Return",
				Quantity:        int64(i + 1),
				UnitPrice:       decimal.RequireFromString(price),
				DiscountPercent: decimal.NewFromInt(int64(i * 7)),
			}},
		})
		require.NoError(t, err)
	}

	docs, err := l.Documents.ListByPeriod(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, docs, len(prices))
	for _, d := range docs {
		assert.True(t, d.NetAmount.Equal(d.GrossAmount.Sub(d.TotalDiscount).Round(2)))
		assert.True(t, d.NetAmount.IsPositive())
		assert.Empty(t, documents.CheckTotals(d))
	}

	var open int
	for _, sc := range l.Store.AllScopes() {
		if sc.Status == scopes.StatusOpen {
			open++
		}
	}
	assert.Equal(t, 1, open)
}
