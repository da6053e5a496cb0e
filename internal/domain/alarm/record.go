package alarm

import "strings"

// Indexes into Record.RawFields, matching the PLC alarms table layout
// after the time and label columns are lifted into their own fields.
const (
	FieldRef = iota
	FieldType
	FieldValue
	FieldTransition
	FieldState
)

// keySeparator joins the intrinsic columns into a Key.
const keySeparator = "|"

// Record is one row scraped from the PLC alarms page. Records are rebuilt
// from scratch on every poll cycle and discarded after reconciliation.
type Record struct {
	// Key is the stable identity of the alarm, derived from intrinsic
	// columns only. Row position is never part of it.
	Key string
	// Timestamp is the PLC-reported time column, kept as an opaque string.
	// The PLC's clock format and timezone are not specified, so no ordering
	// is ever derived from it.
	Timestamp string
	// Description is the alarm label.
	Description string
	// RawFields holds the remaining scraped columns in table order,
	// preserved verbatim for the journal. See the Field* constants.
	RawFields []string
}

// NewRecordKey derives the stable alarm identity from its intrinsic columns.
// Two scrapes of the same ongoing alarm produce equal keys even when
// surrounding rows shift or unrelated alarms clear.
func NewRecordKey(ref, plcTime, transition, value, label string) string {
	return strings.Join([]string{ref, plcTime, transition, value, label}, keySeparator)
}

// Field returns the raw field at the given index, or "" when the row had
// fewer columns than expected.
func (r Record) Field(index int) string {
	if index < 0 || index >= len(r.RawFields) {
		return ""
	}

	return r.RawFields[index]
}
