package scanning

import (
	"context"

	"github.com/zombor/petty-cash/internal/ledger"
)

// ProofData is what a scanner could read off a proof of expense. It is a
// suggestion for a line item; the person filling the report confirms it.
type ProofData struct {
	Supplier       string       `json:"supplier"`
	DocumentNumber string       `json:"document_number"`
	Reason         string       `json:"reason"`
	Date           ledger.Date  `json:"date"`
	Amount         ledger.Money `json:"amount"`
}

// Scanner extracts line item fields from a proof image or PDF.
type Scanner interface {
	ScanProof(ctx context.Context, data []byte, contentType string) (*ProofData, error)
	// Close releases the scanner's resources
	Close() error
}
