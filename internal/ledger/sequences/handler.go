package sequences

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/httpx"
)

// Handler serves number previews.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sequence/{kind}/peek", h.peek)
}

func (h *Handler) peek(w http.ResponseWriter, r *http.Request) {
	kind, err := shared.ParseDocumentKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	preview, err := h.service.PeekActive(r.Context(), kind)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}
