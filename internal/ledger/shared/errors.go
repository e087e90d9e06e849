package shared

import (
	"errors"
	"fmt"
)

// Kind classifies ledger errors with a stable machine-readable code.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindConflict   Kind = "CONFLICT"
	KindNotFound   Kind = "NOT_FOUND"
	KindIntegrity  Kind = "INTEGRITY"
)

// Error is a classified ledger error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Validation builds a VALIDATION error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a CONFLICT error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Integrity builds an INTEGRITY error.
func Integrity(format string, args ...any) *Error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// MessageOf returns the message of the first classified error in err's chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

var (
	// ErrNoActivePeriod indicates no period is currently OPEN.
	ErrNoActivePeriod = NotFound("ledger: no active period")
	// ErrPeriodNotFound indicates an unknown period id.
	ErrPeriodNotFound = NotFound("ledger: period not found")
	// ErrInvalidRange indicates start is not strictly before end.
	ErrInvalidRange = Validation("ledger: period start must be before end")
	// ErrPeriodOverlap indicates the range intersects an existing period.
	ErrPeriodOverlap = Conflict("ledger: period overlaps existing range")
	// ErrPeriodNotOpen indicates a mutation on a period that is not OPEN.
	ErrPeriodNotOpen = Conflict("ledger: period is not open")
	// ErrConcurrentActivation indicates another period became OPEN concurrently.
	ErrConcurrentActivation = Conflict("ledger: another period is already open")
	// ErrPeriodClosed indicates the ledger scope for the period is settled.
	ErrPeriodClosed = Conflict("ledger: period closed")
	// ErrInvalidKind indicates an unknown document kind.
	ErrInvalidKind = Validation("ledger: unknown document kind")
	// ErrInvalidExplicitNumber indicates a non-positive explicit number.
	ErrInvalidExplicitNumber = Validation("ledger: explicit number must be a positive integer")
	// ErrInvalidParty indicates a malformed party reference.
	ErrInvalidParty = Validation("ledger: party must be a SCHOOL or COMPANY with a positive id")
	// ErrNoItems indicates a document without lines.
	ErrNoItems = Validation("ledger: at least one item is required")
	// ErrNonPositiveTotal indicates the document net total is zero or negative.
	ErrNonPositiveTotal = Integrity("ledger: document net total must be positive")
	// ErrDocumentNotFound indicates an unknown document id.
	ErrDocumentNotFound = NotFound("ledger: document not found")
	// ErrDuplicateDocumentNo indicates the number was already issued for its kind and period.
	ErrDuplicateDocumentNo = Conflict("ledger: document number already issued")
	// ErrInvalidStatus indicates the status transition is not allowed.
	ErrInvalidStatus = Conflict("ledger: invalid status transition")
	// ErrEstimationConverted indicates the estimation already became an invoice.
	ErrEstimationConverted = Conflict("ledger: estimation already converted")
	// ErrEstimationNotVoidable indicates a void request on an estimation.
	ErrEstimationNotVoidable = Conflict("ledger: estimations cannot be voided")
	// ErrNotEstimation indicates an estimation-only operation on another kind.
	ErrNotEstimation = Conflict("ledger: operation only applies to estimations")
	// ErrPaymentNotFound indicates an unknown payment id.
	ErrPaymentNotFound = NotFound("ledger: payment not found")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = Validation("ledger: amount must be positive")
	// ErrInvalidMode indicates an unknown payment mode.
	ErrInvalidMode = Validation("ledger: mode must be CASH, UPI, BANK or CHEQUE")
	// ErrReplayedRequest indicates the idempotency key was already processed.
	ErrReplayedRequest = Conflict("ledger: request already processed")
)
