package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrItemNotFound is returned when an edit names a line item that does not exist.
var ErrItemNotFound = errors.New("line item not found")

// StoreDefaults are the values a store pre-fills into a report header.
type StoreDefaults struct {
	Store      string
	Manager    string
	TaxID      string
	PayoutKey  string
	Department string
	Fund       Money
}

// Draft is a report being filled in: a header and its line items.
type Draft struct {
	Header Header     `json:"header"`
	Items  []LineItem `json:"items"`
}

// AddItem appends an empty line item dated today and returns it.
func (r *Draft) AddItem(today Date) LineItem {
	item := LineItem{
		ID:          NextLineItemID(r.Items),
		Date:        today,
		Attachments: []Attachment{},
	}
	r.Items = append(r.Items, item)
	return item
}

// Item returns the line item with the given id.
func (r *Draft) Item(id int) (*LineItem, bool) {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// UpdateItem applies fn to the line item with the given id. The id itself
// cannot be changed.
func (r *Draft) UpdateItem(id int, fn func(*LineItem)) error {
	item, ok := r.Item(id)
	if !ok {
		return fmt.Errorf("updating item %d: %w", id, ErrItemNotFound)
	}
	fn(item)
	item.ID = id
	return nil
}

// RemoveItem deletes the line item with the given id, reporting whether it existed.
func (r *Draft) RemoveItem(id int) bool {
	for i := range r.Items {
		if r.Items[i].ID == id {
			r.Items = append(r.Items[:i], r.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Attach adds a proof to the line item with the given id.
func (r *Draft) Attach(id int, att Attachment) error {
	item, ok := r.Item(id)
	if !ok {
		return fmt.Errorf("attaching to item %d: %w", id, ErrItemNotFound)
	}
	item.Attachments = append(item.Attachments, att)
	return nil
}

// Detach removes the index-th proof of the line item with the given id.
func (r *Draft) Detach(id, index int) error {
	item, ok := r.Item(id)
	if !ok {
		return fmt.Errorf("detaching from item %d: %w", id, ErrItemNotFound)
	}
	if index < 0 || index >= len(item.Attachments) {
		return fmt.Errorf("detaching attachment %d from item %d: index out of range", index, id)
	}
	item.Attachments = append(item.Attachments[:index], item.Attachments[index+1:]...)
	return nil
}

// Totals computes the report's consumed and balance amounts.
func (r *Draft) Totals() Totals {
	return ComputeTotals(r.Header.DisbursedFund, r.Items)
}

// Validate checks the report for completeness.
func (r *Draft) Validate() ValidationResult {
	return ValidateCompleteness(r.Header, r.Items)
}

// ApplyStore pre-fills the header from a store. The holder name is the
// store manager in upper case.
func (r *Draft) ApplyStore(s StoreDefaults) {
	r.Header.Store = s.Store
	r.Header.HolderName = strings.ToUpper(strings.TrimSpace(s.Manager))
	r.Header.TaxID = s.TaxID
	r.Header.PayoutKey = s.PayoutKey
	r.Header.Department = s.Department
	if strings.TrimSpace(r.Header.Department) == "" {
		r.Header.Department = DefaultDepartment
	}
	r.Header.DisbursedFund = s.Fund
}

// AssignMissingIDs gives every item without a usable id (zero, negative or
// already taken) a fresh one, keeping the order of the items.
func (r *Draft) AssignMissingIDs() {
	seen := make(map[int]bool, len(r.Items))
	var pending []int
	for i, item := range r.Items {
		if item.ID <= 0 || seen[item.ID] {
			pending = append(pending, i)
			continue
		}
		seen[item.ID] = true
	}
	for _, i := range pending {
		r.Items[i].ID = 0
		r.Items[i].ID = NextLineItemID(r.Items)
	}
}
