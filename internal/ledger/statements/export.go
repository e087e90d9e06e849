package statements

import (
	"encoding/csv"
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteCSV renders st as CSV. Row amounts stay machine readable; the closing
// line is formatted for people using the grouping rules of lang.
func WriteCSV(w io.Writer, st Statement, lang language.Tag) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "type", "ref_no", "debit", "credit", "balance"}); err != nil {
		return err
	}
	for _, row := range st.Rows {
		record := []string{
			row.Date.Format(time.DateOnly),
			row.Type,
			row.RefNo,
			row.Debit.StringFixed(2),
			row.Credit.StringFixed(2),
			row.Balance.StringFixed(2),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	printer := message.NewPrinter(lang)
	closing := printer.Sprintf("%.2f", st.ClosingBalance.InexactFloat64())
	if err := cw.Write([]string{"", "CLOSING_BALANCE", "", "", "", closing}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
