// Package ledger holds the petty-cash report model and the arithmetic and
// completeness rules applied to it. Everything here is pure: no I/O, no clock.
package ledger

import (
	"bytes"
	"encoding/json"
)

// DefaultDepartment is the department a report gets when none is chosen.
const DefaultDepartment = "Loja"

// Attachment is a proof file attached to a line item. The ledger only cares
// whether an item has any; Path is set once the file has been stored.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Path        string `json:"path,omitempty"`
}

// LineItem is one dated expense paid from the fund.
type LineItem struct {
	ID             int          `json:"id"`
	Date           Date         `json:"date"`
	Reason         string       `json:"reason"`
	Supplier       string       `json:"supplier"`
	DocumentNumber string       `json:"document_number,omitempty"`
	Amount         Money        `json:"amount"`
	Attachments    []Attachment `json:"attachments"`
}

// Header identifies who received the fund and how to reimburse them.
type Header struct {
	HolderName    string `json:"holder_name"`
	TaxID         string `json:"tax_id"`
	Store         string `json:"store"`
	Department    string `json:"department"`
	PayoutKey     string `json:"payout_key"`
	DisbursedFund Money  `json:"disbursed_fund"`
	ReportDate    Date   `json:"report_date"`
}

// Totals are derived from a fund and its line items; they are never stored
// on their own.
type Totals struct {
	Consumed Money `json:"consumed"`
	Balance  Money `json:"balance"`
}

// UnmarshalJSON keeps the sign of the balance, which Money alone drops.
func (t *Totals) UnmarshalJSON(data []byte) error {
	var raw struct {
		Consumed Money           `json:"consumed"`
		Balance  json.RawMessage `json:"balance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Consumed = raw.Consumed
	t.Balance = signedMoney(raw.Balance)
	return nil
}

func signedMoney(data []byte) Money {
	data = bytes.TrimSpace(data)
	negative := bytes.HasPrefix(data, []byte("-")) || bytes.HasPrefix(data, []byte(`"-`))
	var m Money
	if err := m.UnmarshalJSON(data); err != nil {
		return 0
	}
	if negative {
		return -m
	}
	return m
}

// ComputeTotals sums the item amounts and subtracts them from the fund. The
// balance is not clamped: overspending yields a negative balance.
func ComputeTotals(fund Money, items []LineItem) Totals {
	var consumed Money
	for _, item := range items {
		consumed += item.Amount
	}
	return Totals{
		Consumed: consumed,
		Balance:  fund - consumed,
	}
}

// NextLineItemID returns 1 for an empty report, else one more than the
// largest id present, so ids freed by deletions are never reused while a
// larger one exists.
func NextLineItemID(items []LineItem) int {
	next := 1
	for _, item := range items {
		if item.ID >= next {
			next = item.ID + 1
		}
	}
	return next
}

// UsagePercent is the share of the fund consumed, rounded to a whole percent.
// It is 0 when the fund is not positive.
func UsagePercent(fund, consumed Money) int {
	if fund <= 0 {
		return 0
	}
	return int(consumed.Decimal().Div(fund.Decimal()).Mul(hundred).Round(0).IntPart())
}
