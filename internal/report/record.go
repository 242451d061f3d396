package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/petty-cash/internal/export"
	"github.com/zombor/petty-cash/internal/ledger"
	"github.com/zombor/petty-cash/internal/pix"
)

// ErrInvalidStore is returned when a store fails validation
var ErrInvalidStore = errors.New("invalid store")

// Record is a submitted report with its stored files
type Record struct {
	ID        string            `json:"id"`
	Header    ledger.Header     `json:"header"`
	Items     []ledger.LineItem `json:"items"`
	Totals    ledger.Totals     `json:"totals"`
	PDFPath   string            `json:"pdf_path"`
	CreatedAt time.Time         `json:"created_at"`
}

// Snapshot returns the record in the shape the exporters render
func (r *Record) Snapshot() export.Snapshot {
	return export.Snapshot{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Header:    r.Header,
		Items:     r.Items,
		Totals:    r.Totals,
	}
}

// Store is an entry in the stores reference table
type Store struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Manager    string       `json:"manager"`
	TaxID      string       `json:"tax_id"`
	PixKey     string       `json:"pix_key"`
	Department string       `json:"department"`
	FixedFund  ledger.Money `json:"fixed_fund"`
}

// Defaults returns the header values the store pre-fills
func (s *Store) Defaults() ledger.StoreDefaults {
	return ledger.StoreDefaults{
		Store:      s.Name,
		Manager:    s.Manager,
		TaxID:      s.TaxID,
		PayoutKey:  s.PixKey,
		Department: s.Department,
		Fund:       s.FixedFund,
	}
}

// Validate checks that the store has a name and, if set, a valid PIX key
func (s *Store) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStore)
	}
	if strings.TrimSpace(s.PixKey) != "" {
		if c := pix.Classify(s.PixKey); !c.Valid() {
			return fmt.Errorf("%w: pix key %s", ErrInvalidStore, c.Reason)
		}
	}
	if s.FixedFund < 0 {
		return fmt.Errorf("%w: fixed fund cannot be negative", ErrInvalidStore)
	}
	return nil
}

// Admin is a dashboard user
type Admin struct {
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Filter narrows the records listed on the dashboard. Zero values match everything.
type Filter struct {
	Store  string
	Holder string
	Start  ledger.Date
	End    ledger.Date
}

// Match reports whether the record passes the filter. Store matches exactly,
// holder as a case-insensitive substring, and dates inclusively.
func (f Filter) Match(r *Record) bool {
	if f.Store != "" && r.Header.Store != f.Store {
		return false
	}
	if f.Holder != "" && !strings.Contains(strings.ToLower(r.Header.HolderName), strings.ToLower(f.Holder)) {
		return false
	}
	if !f.Start.IsZero() && r.Header.ReportDate.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && r.Header.ReportDate.After(f.End) {
		return false
	}
	return true
}
