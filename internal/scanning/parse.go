package scanning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/petty-cash/internal/ledger"
)

// proofDateLayouts are tried in order after ISO 8601. Brazilian documents
// put the day first.
var proofDateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"2006/01/02",
}

type rawProof struct {
	Supplier       string          `json:"supplier"`
	DocumentNumber json.RawMessage `json:"document_number"`
	Reason         string          `json:"reason"`
	Date           string          `json:"date"`
	Amount         ledger.Money    `json:"amount"`
}

// parseProofJSON parses an LLM response. Dates that are missing or cannot be
// read fall back to today.
func parseProofJSON(text string, today ledger.Date) (*ProofData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw rawProof
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data := &ProofData{
		Supplier:       strings.TrimSpace(raw.Supplier),
		DocumentNumber: documentNumber(raw.DocumentNumber),
		Reason:         strings.TrimSpace(raw.Reason),
		Date:           parseProofDate(raw.Date, today),
		Amount:         raw.Amount,
	}
	return data, nil
}

// documentNumber accepts the number either as a JSON string or a bare number.
func documentNumber(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return strings.TrimSpace(unquoted)
	}
	return s
}

func parseProofDate(s string, today ledger.Date) ledger.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return today
	}
	if d, err := ledger.ParseDate(s); err == nil {
		return d
	}
	for _, layout := range proofDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ledger.DateOf(t)
		}
	}
	return today
}
