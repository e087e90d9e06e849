// Package scopes manages ledger scopes: the grouping of one party's
// transactions inside one period.
package scopes

import (
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Status enumerates scope states.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusSettled Status = "SETTLED"
)

// Scope ties a party to a period.
type Scope struct {
	ID        int64           `json:"id"`
	Party     shared.PartyRef `json:"party"`
	PeriodID  int64           `json:"periodId"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	SettledAt *time.Time      `json:"settledAt,omitempty"`
}

// IDs extracts the scope ids.
func IDs(list []Scope) []int64 {
	out := make([]int64, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}
