// Package documents issues estimations, invoices and credit notes inside a
// ledger scope.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Status enumerates document states. Estimations stay ISSUED for life.
type Status string

const (
	StatusIssued Status = "ISSUED"
	StatusVoid   Status = "VOID"
)

// Document is the header of a numbered ledger entry.
type Document struct {
	ID            int64               `json:"id"`
	DocumentNo    string              `json:"documentNo"`
	Number        int64               `json:"number"`
	Date          time.Time           `json:"date"`
	Kind          shared.DocumentKind `json:"kind"`
	Status        Status              `json:"status"`
	Party         shared.PartyRef     `json:"party"`
	ScopeID       int64               `json:"scopeId"`
	PeriodID      int64               `json:"periodId"`
	TotalQuantity int64               `json:"totalQuantity"`
	GrossAmount   decimal.Decimal     `json:"grossAmount"`
	TotalDiscount decimal.Decimal     `json:"totalDiscount"`
	NetAmount     decimal.Decimal     `json:"netAmount"`
	Notes         *string             `json:"notes,omitempty"`
	BilledBy      *shared.PartyRef    `json:"billedBy,omitempty"`
	SourceID      *int64              `json:"sourceEstimationId,omitempty"`
	ConvertedToID *int64              `json:"convertedToId,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	Items         []Item              `json:"items,omitempty"`
}

// Converted reports whether an estimation already became an invoice.
func (d Document) Converted() bool {
	return d.ConvertedToID != nil
}

// Item is one line of a document.
type Item struct {
	ID              int64           `json:"id"`
	DocumentID      int64           `json:"documentId"`
	LineNo          int             `json:"lineNo"`
	Description     string          `json:"description"`
	ClassTag        *string         `json:"classTag,omitempty"`
	CompanyTag      *string         `json:"companyTag,omitempty"`
	TextbookID      *int64          `json:"textbookId,omitempty"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	GrossAmount     decimal.Decimal `json:"grossAmount"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	NetAmount       decimal.Decimal `json:"netAmount"`
}

// ItemInput is a requested line before computation.
type ItemInput struct {
	Description     string
	ClassTag        *string
	CompanyTag      *string
	TextbookID      *int64
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// CreateInput carries everything needed to issue a document.
type CreateInput struct {
	Kind           shared.DocumentKind
	Party          shared.PartyRef
	BilledBy       *shared.PartyRef
	Items          []ItemInput
	ExplicitNumber *int64
	Notes          *string
	Date           time.Time
	IdempotencyKey string
}

// Validate checks everything that does not need the store.
func (in CreateInput) Validate() error {
	if !in.Kind.IsDocument() {
		return shared.ErrInvalidKind
	}
	if err := in.Party.Validate(); err != nil {
		return err
	}
	if in.BilledBy != nil {
		if err := in.BilledBy.Validate(); err != nil {
			return err
		}
	}
	if in.ExplicitNumber != nil && *in.ExplicitNumber <= 0 {
		return shared.ErrInvalidExplicitNumber
	}
	return nil
}
