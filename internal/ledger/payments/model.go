// Package payments posts receipts against a party's ledger scope.
package payments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Status enumerates payment states.
type Status string

const (
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// Mode is how the money moved.
type Mode string

const (
	ModeCash   Mode = "CASH"
	ModeUPI    Mode = "UPI"
	ModeBank   Mode = "BANK"
	ModeCheque Mode = "CHEQUE"
)

// ParseMode normalises raw input into a Mode.
func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case ModeCash, ModeUPI, ModeBank, ModeCheque:
		return m, nil
	}
	return "", shared.ErrInvalidMode
}

// Payment is one posted receipt.
type Payment struct {
	ID         int64            `json:"id"`
	ReceiptNo  string           `json:"receiptNo"`
	Number     int64            `json:"number"`
	Party      shared.PartyRef  `json:"party"`
	ScopeID    int64            `json:"scopeId"`
	PeriodID   int64            `json:"periodId"`
	Date       time.Time        `json:"date"`
	Amount     decimal.Decimal  `json:"amount"`
	Mode       Mode             `json:"mode"`
	Status     Status           `json:"status"`
	Reference  *string          `json:"reference,omitempty"`
	Note       *string          `json:"note,omitempty"`
	RecordedBy *shared.PartyRef `json:"recordedBy,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// PostInput carries a payment request.
type PostInput struct {
	Party          shared.PartyRef
	Amount         decimal.Decimal
	Mode           Mode
	ExplicitNumber *int64
	Reference      *string
	Note           *string
	RecordedBy     *shared.PartyRef
	Date           time.Time
	IdempotencyKey string
}

// Validate checks the request before any transaction starts.
func (in PostInput) Validate() error {
	if err := in.Party.Validate(); err != nil {
		return err
	}
	if !shared.Round2(in.Amount).IsPositive() {
		return shared.ErrInvalidAmount
	}
	if _, err := ParseMode(string(in.Mode)); err != nil {
		return err
	}
	if in.RecordedBy != nil {
		if err := in.RecordedBy.Validate(); err != nil {
			return err
		}
	}
	if in.ExplicitNumber != nil && *in.ExplicitNumber <= 0 {
		return shared.ErrInvalidExplicitNumber
	}
	return nil
}
