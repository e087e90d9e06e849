package documents

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/httpx"
)

// IdempotencyHeader lets clients make document creation replay-safe.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes documents over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.create)
	r.Get("/documents/{id}", h.get)
	r.Post("/documents/{id}/void", h.void)
	r.Delete("/documents/{id}", h.delete)
	r.Post("/documents/{id}/convert", h.convert)
}

type partyRequest struct {
	Kind string `json:"kind" validate:"required,oneof=SCHOOL COMPANY"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

func (p *partyRequest) ref() *shared.PartyRef {
	if p == nil {
		return nil
	}
	return &shared.PartyRef{Kind: shared.PartyKind(p.Kind), ID: p.ID}
}

type itemRequest struct {
	Description     string          `json:"description" validate:"required,max=500"`
	ClassTag        *string         `json:"classTag,omitempty" validate:"omitempty,max=64"`
	CompanyTag      *string         `json:"companyTag,omitempty" validate:"omitempty,max=128"`
	TextbookID      *int64          `json:"textbookId,omitempty" validate:"omitempty,gt=0"`
	Quantity        int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

type createRequest struct {
	Kind           string        `json:"kind" validate:"required"`
	PartyRef       partyRequest  `json:"partyRef"`
	BilledBy       *partyRequest `json:"billedBy,omitempty"`
	Items          []itemRequest `json:"items" validate:"dive"`
	ExplicitNumber *int64        `json:"explicitNumber,omitempty" validate:"omitempty,gt=0"`
	Notes          *string       `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Date           *httpx.Date   `json:"date,omitempty"`
}

type createResponse struct {
	DocumentID int64  `json:"documentId"`
	DocumentNo string `json:"documentNo"`
}

type convertRequest struct {
	BilledBy *partyRequest `json:"billedBy,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	kind, err := shared.ParseDocumentKind(req.Kind)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in := CreateInput{
		Kind:           kind,
		Party:          *req.PartyRef.ref(),
		BilledBy:       req.BilledBy.ref(),
		ExplicitNumber: req.ExplicitNumber,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	if req.Date != nil {
		in.Date = req.Date.Time
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, ItemInput{
			Description:     it.Description,
			ClassTag:        it.ClassTag,
			CompanyTag:      it.CompanyTag,
			TextbookID:      it.TextbookID,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
		})
	}
	doc, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createResponse{DocumentID: doc.ID, DocumentNo: doc.DocumentNo})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	doc, err := h.service.Void(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documentId": doc.ID, "status": doc.Status})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteEstimation(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req convertRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
	}
	doc, err := h.service.ConvertEstimation(r.Context(), id, req.BilledBy.ref())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createResponse{DocumentID: doc.ID, DocumentNo: doc.DocumentNo})
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid document id")
	}
	return id, nil
}
