package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AuditField names an item field whose pre-edit value is preserved.
type AuditField string

const (
	AuditFieldPrice    AuditField = "price"
	AuditFieldQuantity AuditField = "quantity"
)

// AuditEntry holds the value a field had before its first edit and the latest explanatory note.
type AuditEntry struct {
	PriorValue decimal.Decimal
	Note       string
}

// OriginalValues maps audited fields to their recorded pre-edit state.
// The prior value is first-write-wins; the note is last-write-wins when non-empty.
type OriginalValues map[AuditField]AuditEntry

// Record returns a copy of v with the edit of field applied.
func (v OriginalValues) Record(field AuditField, prior decimal.Decimal, note string) OriginalValues {
	out := v.Clone()
	if out == nil {
		out = make(OriginalValues, 1)
	}
	note = strings.TrimSpace(note)

	entry, ok := out[field]
	if !ok {
		out[field] = AuditEntry{PriorValue: prior, Note: note}
		return out
	}
	if note != "" {
		entry.Note = note
		out[field] = entry
	}
	return out
}

// Entry returns the audit entry recorded for field.
func (v OriginalValues) Entry(field AuditField) (AuditEntry, bool) {
	if v == nil {
		return AuditEntry{}, false
	}
	entry, ok := v[field]
	return entry, ok
}

// Has reports whether field carries a recorded prior value.
func (v OriginalValues) Has(field AuditField) bool {
	_, ok := v.Entry(field)
	return ok
}

// Clone returns an independent copy; nil stays nil.
func (v OriginalValues) Clone() OriginalValues {
	if v == nil {
		return nil
	}
	out := make(OriginalValues, len(v))
	for field, entry := range v {
		out[field] = entry
	}
	return out
}
