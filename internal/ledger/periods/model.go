package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Status enumerates valid period states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Period represents one academic (fiscal) year.
type Period struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartDate time.Time  `json:"startDate"`
	EndDate   time.Time  `json:"endDate"`
	Status    Status     `json:"status"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsOpen reports whether documents may attach to the period.
func (p Period) IsOpen() bool {
	return p.Status == StatusOpen
}

// Contains reports whether day falls inside the period, bounds inclusive.
func (p Period) Contains(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(truncateDay(p.StartDate)) && !d.After(truncateDay(p.EndDate))
}

// Overlaps applies start₁ ≤ end₂ AND end₁ ≥ start₂.
func (p Period) Overlaps(start, end time.Time) bool {
	return !truncateDay(p.StartDate).After(truncateDay(end)) && !truncateDay(p.EndDate).Before(truncateDay(start))
}

// Name derives "{startYear}-{endYear:2 digits}", e.g. 2024-25.
func Name(start, end time.Time) string {
	return fmt.Sprintf("%d-%02d", start.Year(), end.Year()%100)
}

// RangeInput captures a requested period window.
type RangeInput struct {
	Start time.Time
	End   time.Time
}

// Validate ensures the range is coherent.
func (in RangeInput) Validate() error {
	if in.Start.IsZero() || in.End.IsZero() {
		return shared.Validation("ledger: start and end date required")
	}
	if !truncateDay(in.Start).Before(truncateDay(in.End)) {
		return shared.ErrInvalidRange
	}
	return nil
}

func (in RangeInput) normalised() RangeInput {
	return RangeInput{Start: truncateDay(in.Start), End: truncateDay(in.End)}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
