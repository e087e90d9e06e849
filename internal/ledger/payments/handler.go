package payments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/httpx"
)

// Handler exposes payments over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.post)
	r.Get("/payments/{id}", h.get)
	r.Post("/payments/{id}/void", h.void)
}

type partyRequest struct {
	Kind string `json:"kind" validate:"required,oneof=SCHOOL COMPANY"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

type postRequest struct {
	PartyRef        partyRequest    `json:"partyRef"`
	Amount          decimal.Decimal `json:"amount"`
	Mode            string          `json:"mode" validate:"required"`
	ExplicitReceipt *int64          `json:"explicitNumber,omitempty" validate:"omitempty,gt=0"`
	Reference       *string         `json:"reference,omitempty" validate:"omitempty,max=128"`
	Note            *string         `json:"note,omitempty" validate:"omitempty,max=2000"`
	RecordedBy      *partyRequest   `json:"recordedBy,omitempty"`
	Date            *httpx.Date     `json:"date,omitempty"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in := PostInput{
		Party:          shared.PartyRef{Kind: shared.PartyKind(req.PartyRef.Kind), ID: req.PartyRef.ID},
		Amount:         req.Amount,
		Mode:           mode,
		ExplicitNumber: req.ExplicitReceipt,
		Reference:      req.Reference,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.RecordedBy != nil {
		in.RecordedBy = &shared.PartyRef{Kind: shared.PartyKind(req.RecordedBy.Kind), ID: req.RecordedBy.ID}
	}
	if req.Date != nil {
		in.Date = req.Date.Time
	}
	p, err := h.service.Post(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"paymentId": p.ID, "receiptNo": p.ReceiptNo})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	p, err := h.service.Void(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"paymentId": p.ID, "status": p.Status})
}

func paymentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid payment id")
	}
	return id, nil
}
