package ledger

import (
	"fmt"
	"strings"

	"github.com/zombor/petty-cash/internal/pix"
)

// ProblemKind classifies why a report cannot be finalised.
type ProblemKind string

const (
	MissingField      ProblemKind = "missing_field"
	NonPositiveFund   ProblemKind = "non_positive_fund"
	MissingAttachment ProblemKind = "missing_attachment"
	InvalidPayoutKey  ProblemKind = "invalid_payout_key"
)

// Problem is one reason a report is incomplete.
type Problem struct {
	Kind    ProblemKind `json:"kind"`
	Fields  []string    `json:"fields,omitempty"`
	ItemIDs []int       `json:"item_ids,omitempty"`
	Message string      `json:"message"`
}

// ValidationResult collects every problem found in a report.
type ValidationResult struct {
	Problems []Problem `json:"problems"`
}

// OK reports whether the report may be finalised.
func (v ValidationResult) OK() bool {
	return len(v.Problems) == 0
}

// Has reports whether a problem of the given kind was found.
func (v ValidationResult) Has(kind ProblemKind) bool {
	for _, p := range v.Problems {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// Find returns the first problem of the given kind.
func (v ValidationResult) Find(kind ProblemKind) (Problem, bool) {
	for _, p := range v.Problems {
		if p.Kind == kind {
			return p, true
		}
	}
	return Problem{}, false
}

// Err returns the problems as a *ValidationError, or nil when there are none.
func (v ValidationResult) Err() error {
	if v.OK() {
		return nil
	}
	return &ValidationError{Problems: v.Problems}
}

// ValidationError carries the problems of an incomplete report.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Message
	}
	return "report is incomplete: " + strings.Join(msgs, "; ")
}

// ValidateCompleteness checks everything that must hold before a report is
// exported or saved, collecting all problems rather than stopping at the first.
func ValidateCompleteness(h Header, items []LineItem) ValidationResult {
	var result ValidationResult

	required := []struct {
		name  string
		value string
	}{
		{"holderName", h.HolderName},
		{"taxId", h.TaxID},
		{"store", h.Store},
		{"payoutKey", h.PayoutKey},
		{"department", h.Department},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if h.ReportDate.IsZero() {
		missing = append(missing, "reportDate")
	}
	if len(missing) > 0 {
		result.Problems = append(result.Problems, Problem{
			Kind:    MissingField,
			Fields:  missing,
			Message: "missing required fields: " + strings.Join(missing, ", "),
		})
	}

	if h.DisbursedFund <= 0 {
		result.Problems = append(result.Problems, Problem{
			Kind:    NonPositiveFund,
			Message: "disbursed fund must be greater than zero",
		})
	}

	var unproven []int
	for _, item := range items {
		if len(item.Attachments) == 0 {
			unproven = append(unproven, item.ID)
		}
	}
	if len(unproven) > 0 {
		result.Problems = append(result.Problems, Problem{
			Kind:    MissingAttachment,
			ItemIDs: unproven,
			Message: fmt.Sprintf("line items without attachments: %s", joinInts(unproven)),
		})
	}

	// An empty key is already reported as a missing field.
	if strings.TrimSpace(h.PayoutKey) != "" {
		if c := pix.Classify(h.PayoutKey); !c.Valid() {
			result.Problems = append(result.Problems, Problem{
				Kind:    InvalidPayoutKey,
				Fields:  []string{"payoutKey"},
				Message: "invalid payout key: " + c.Reason,
			})
		}
	}

	return result
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
