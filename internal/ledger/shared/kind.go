package shared

import "strings"

// DocumentKind enumerates numbered ledger entries.
type DocumentKind string

const (
	KindEstimation DocumentKind = "ESTIMATION"
	KindInvoice    DocumentKind = "INVOICE"
	KindCreditNote DocumentKind = "CREDIT_NOTE"
	KindPayment    DocumentKind = "PAYMENT"
)

var kindPrefixes = map[DocumentKind]string{
	KindEstimation: "EST",
	KindInvoice:    "INV",
	KindCreditNote: "CN",
	KindPayment:    "RCPT",
}

// ParseDocumentKind normalises raw input into a DocumentKind.
func ParseDocumentKind(raw string) (DocumentKind, error) {
	k := DocumentKind(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := kindPrefixes[k]; !ok {
		return "", ErrInvalidKind
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k DocumentKind) Valid() bool {
	_, ok := kindPrefixes[k]
	return ok
}

// IsDocument reports kinds persisted as documents (everything but payments).
func (k DocumentKind) IsDocument() bool {
	return k == KindEstimation || k == KindInvoice || k == KindCreditNote
}

// Prefix returns the document number prefix.
func (k DocumentKind) Prefix() string {
	return kindPrefixes[k]
}
