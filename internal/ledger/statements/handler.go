package statements

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/httpx"
)

//go:generate mockgen -source=handler.go -destination=provider_mock.go -package=statements

// Provider builds statements.
type Provider interface {
	Statement(ctx context.Context, party shared.PartyRef, periodID int64) (Statement, error)
}

// Handler serves statements as JSON or CSV.
type Handler struct {
	logger   *slog.Logger
	provider Provider
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, provider Provider) *Handler {
	return &Handler{logger: logger, provider: provider}
}

// MountRoutes registers statement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statement", h.show)
	r.Get("/statement.csv", h.export)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	party, periodID, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	st, err := h.provider.Statement(r.Context(), party, periodID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if st.Rows == nil {
		st.Rows = []Row{}
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	party, periodID, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	st, err := h.provider.Statement(r.Context(), party, periodID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	lang := language.English
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		lang = tags[0]
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s-%d-%d.csv"`, party.Kind, party.ID, st.PeriodID))
	w.WriteHeader(http.StatusOK)
	if err := WriteCSV(w, st, lang); err != nil {
		h.logger.Error("statement export failed", slog.Any("error", err))
	}
}

// parseQuery reads partyKind (default SCHOOL), party and the optional period.
func parseQuery(r *http.Request) (shared.PartyRef, int64, error) {
	q := r.URL.Query()
	kind := q.Get("partyKind")
	if kind == "" {
		kind = string(shared.PartySchool)
	}
	id, err := strconv.ParseInt(q.Get("party"), 10, 64)
	if err != nil {
		return shared.PartyRef{}, 0, shared.ErrInvalidParty
	}
	party, err := shared.NewParty(kind, id)
	if err != nil {
		return shared.PartyRef{}, 0, err
	}
	var periodID int64
	if raw := q.Get("period"); raw != "" {
		periodID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || periodID <= 0 {
			return shared.PartyRef{}, 0, shared.Validation("ledger: invalid period id")
		}
	}
	return party, periodID, nil
}
