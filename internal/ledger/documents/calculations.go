package documents

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// inputScale matches the scale of document_items.unit_price and
// discount_percent.
const inputScale = 6

// Totals are the header amounts accumulated from computed lines.
type Totals struct {
	Quantity int64
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Net      decimal.Decimal
}

// ComputeLine validates one input and derives its amounts. Each amount is
// rounded to two places before it is summed into the header.
func ComputeLine(lineNo int, in ItemInput) (Item, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return Item{}, shared.Validation("ledger: item %d description required", lineNo)
	}
	if in.Quantity <= 0 {
		return Item{}, shared.Validation("ledger: item %d quantity must be positive", lineNo)
	}
	if in.UnitPrice.IsNegative() {
		return Item{}, shared.Validation("ledger: item %d unit price must not be negative", lineNo)
	}
	if !fitsScale(in.UnitPrice) {
		return Item{}, shared.Validation("ledger: item %d unit price allows at most %d decimal places", lineNo, inputScale)
	}
	pct := shared.ClampPercent(in.DiscountPercent)
	if !fitsScale(pct) {
		return Item{}, shared.Validation("ledger: item %d discount percent allows at most %d decimal places", lineNo, inputScale)
	}
	gross := shared.Round2(decimal.NewFromInt(in.Quantity).Mul(in.UnitPrice))
	discount := shared.Percent(gross, pct)
	return Item{
		LineNo:          lineNo,
		Description:     desc,
		ClassTag:        in.ClassTag,
		CompanyTag:      in.CompanyTag,
		TextbookID:      in.TextbookID,
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		DiscountPercent: pct,
		GrossAmount:     gross,
		DiscountAmount:  discount,
		NetAmount:       shared.Round2(gross.Sub(discount)),
	}, nil
}

func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(inputScale))
}

// RequirePositive rejects a net total of zero or less.
func (t Totals) RequirePositive() error {
	if !t.Net.IsPositive() {
		return shared.ErrNonPositiveTotal
	}
	return nil
}

// ComputeItems computes every line and the header totals. A net total of zero
// or less is rejected.
func ComputeItems(inputs []ItemInput) ([]Item, Totals, error) {
	items, totals, err := computeLines(inputs)
	if err != nil {
		return nil, Totals{}, err
	}
	if err := totals.RequirePositive(); err != nil {
		return nil, Totals{}, err
	}
	return items, totals, nil
}

func computeLines(inputs []ItemInput) ([]Item, Totals, error) {
	if len(inputs) == 0 {
		return nil, Totals{}, shared.ErrNoItems
	}
	items := make([]Item, 0, len(inputs))
	totals := Totals{Gross: decimal.Zero, Discount: decimal.Zero}
	for i, in := range inputs {
		item, err := ComputeLine(i+1, in)
		if err != nil {
			return nil, Totals{}, err
		}
		totals.Quantity += item.Quantity
		totals.Gross = totals.Gross.Add(item.GrossAmount)
		totals.Discount = totals.Discount.Add(item.DiscountAmount)
		items = append(items, item)
	}
	totals.Net = shared.Round2(totals.Gross.Sub(totals.Discount))
	return items, totals, nil
}

// inputsFrom turns persisted items back into inputs, used when an estimation
// becomes an invoice.
func inputsFrom(items []Item) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, ItemInput{
			Description:     it.Description,
			ClassTag:        it.ClassTag,
			CompanyTag:      it.CompanyTag,
			TextbookID:      it.TextbookID,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
		})
	}
	return out
}

// CheckTotals verifies the persisted header against its lines. It returns a
// description per violated rule.
func CheckTotals(doc Document) []string {
	var problems []string
	want := shared.Round2(doc.GrossAmount.Sub(doc.TotalDiscount))
	if !doc.NetAmount.Equal(want) {
		problems = append(problems, "net_total")
	}
	if !doc.NetAmount.IsPositive() {
		problems = append(problems, "non_positive")
	}
	if len(doc.Items) > 0 {
		sum := decimal.Zero
		for _, it := range doc.Items {
			sum = sum.Add(it.NetAmount)
		}
		if !sum.Equal(doc.NetAmount) {
			problems = append(problems, "item_sum")
		}
	}
	return problems
}
