package statements_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/ledger/statements"
)

func router(p statements.Provider) http.Handler {
	r := chi.NewRouter()
	statements.NewHandler(ledgertest.DiscardLogger(), p).MountRoutes(r)
	return r
}

func get(h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerShowDefaultsToSchool(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := statements.NewMockProvider(ctrl)
	provider.EXPECT().
		Statement(gomock.Any(), shared.PartyRef{Kind: shared.PartySchool, ID: 12}, int64(0)).
		Return(statements.Statement{Party: shared.PartyRef{Kind: shared.PartySchool, ID: 12}, PeriodID: 3, ClosingBalance: decimal.Zero}, nil)

	rec := get(router(provider), "/statement?party=12", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{}, body["rows"])
	assert.EqualValues(t, 3, body["periodId"])
}

func TestHandlerShowCompanyPeriod(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := statements.NewMockProvider(ctrl)
	provider.EXPECT().
		Statement(gomock.Any(), shared.PartyRef{Kind: shared.PartyCompany, ID: 7}, int64(4)).
		Return(statements.Statement{}, shared.ErrPeriodNotFound)

	rec := get(router(provider), "/statement?partyKind=company&party=7&period=4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsBadQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := statements.NewMockProvider(ctrl)
	h := router(provider)

	for _, target := range []string{
		"/statement",
		"/statement?party=abc",
		"/statement?party=0",
		"/statement?party=1&partyKind=DEALER",
		"/statement?party=1&period=-2",
	} {
		rec := get(h, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandlerExportCSV(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := statements.NewMockProvider(ctrl)
	provider.EXPECT().
		Statement(gomock.Any(), gomock.Any(), int64(0)).
		Return(statements.Statement{
			Party:          shared.PartyRef{Kind: shared.PartySchool, ID: 1},
			PeriodID:       2,
			ClosingBalance: decimal.NewFromInt(1234567),
		}, nil)

	rec := get(router(provider), "/statement.csv?party=1", map[string]string{"Accept-Language": "en-US,en;q=0.8"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "statement-SCHOOL-1-2.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `,CLOSING_BALANCE,,,,"1,234,567.00"`, lines[1])
}
