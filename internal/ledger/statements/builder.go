// Package statements renders a party's chronological running-balance view
// over documents and payments.
package statements

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Row types.
const (
	TypeInvoice         = "INVOICE"
	TypePurchaseInvoice = "PURCHASE_INVOICE"
	TypeCreditNote      = "CREDIT_NOTE"
	TypePayment         = "PAYMENT"
)

// Row is one statement line.
type Row struct {
	Date    time.Time       `json:"date"`
	Type    string          `json:"type"`
	RefNo   string          `json:"refNo"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

// Statement is the running-balance view of one party in one period.
type Statement struct {
	Party          shared.PartyRef `json:"party"`
	PeriodID       int64           `json:"periodId"`
	Rows           []Row           `json:"rows"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
}

type entry struct {
	row       Row
	class     int
	createdAt time.Time
	id        int64
}

// Build turns documents and payments into rows. Receivable parties (schools)
// are debited by invoices and credited by credit notes and payments; payable
// parties (companies) see every direction flipped and their invoices labelled
// as purchase invoices. Voided entries, estimations and foreign kinds are
// ignored. Rows on the same day list documents before payments, then follow
// creation order.
func Build(party shared.PartyRef, docs []documents.Document, pays []payments.Payment) Statement {
	receivable := party.Receivable()
	entries := make([]entry, 0, len(docs)+len(pays))

	for _, d := range docs {
		if d.Status != documents.StatusIssued {
			continue
		}
		var row Row
		switch {
		case d.Kind == shared.KindInvoice && receivable:
			row = Row{Type: TypeInvoice, Debit: d.NetAmount}
		case d.Kind == shared.KindInvoice:
			row = Row{Type: TypePurchaseInvoice, Credit: d.NetAmount}
		case d.Kind == shared.KindCreditNote && receivable:
			row = Row{Type: TypeCreditNote, Credit: d.NetAmount}
		case d.Kind == shared.KindCreditNote:
			row = Row{Type: TypeCreditNote, Debit: d.NetAmount}
		default:
			continue
		}
		row.Date = d.Date
		row.RefNo = d.DocumentNo
		entries = append(entries, entry{row: row, class: 0, createdAt: d.CreatedAt, id: d.ID})
	}

	for _, p := range pays {
		if p.Status != payments.StatusPosted {
			continue
		}
		row := Row{Date: p.Date, Type: TypePayment, RefNo: p.ReceiptNo}
		if receivable {
			row.Credit = p.Amount
		} else {
			row.Debit = p.Amount
		}
		entries = append(entries, entry{row: row, class: 1, createdAt: p.CreatedAt, id: p.ID})
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := calendarDay(a.row.Date).Compare(calendarDay(b.row.Date)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.class, b.class); c != 0 {
			return c
		}
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	balance := decimal.Zero
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		balance = shared.Round2(balance.Add(e.row.Debit).Sub(e.row.Credit))
		e.row.Balance = balance
		rows = append(rows, e.row)
	}
	return Statement{Party: party, Rows: rows, ClosingBalance: balance}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
