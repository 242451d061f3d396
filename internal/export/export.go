// Package export renders reports into the files people download: the PDF
// report, ZIP bundles of report and proofs, and the records spreadsheet.
package export

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zombor/petty-cash/internal/ledger"
)

// Snapshot is a report as it is rendered: header, items and their totals.
// ID and CreatedAt are set once the report has been stored.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Header    ledger.Header
	Items     []ledger.LineItem
	Totals    ledger.Totals
}

// Proof is the content of one attachment.
type Proof struct {
	ItemID      int
	Name        string
	ContentType string
	Data        []byte
}

// Converter turns a proof into PNG bytes for embedding.
type Converter func(data []byte, contentType string) ([]byte, error)

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// BRL formats an amount as Brazilian reais, e.g. "R$ 1.234,56".
func BRL(m ledger.Money) string {
	if m < 0 {
		return "-" + BRL(-m)
	}
	return brPrinter.Sprintf("R$ %.2f", m.Decimal().InexactFloat64())
}

// BRDate formats a date day first, e.g. "05/03/2024".
func BRDate(d ledger.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
