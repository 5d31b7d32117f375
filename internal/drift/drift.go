// Package drift fingerprints a source's layout so an operator can be warned
// when a vendor changes their export. A mismatch is informational only: it
// never blocks parsing and never alters reconciliation.
package drift

import (
	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
)

// FromRows builds the shape signature of one fetched layout.
func FromRows(rows [][]string, sheetNames []string) internal.Fingerprint {
	fp := internal.Fingerprint{RowCount: len(rows), SheetNames: sheetNames}
	for _, row := range rows {
		if len(row) > fp.ColumnCount {
			fp.ColumnCount = len(row)
		}
	}
	if len(rows) > 0 {
		fp.FirstRow = append([]string(nil), rows[0]...)
	}
	return fp
}

// Equal deep-compares two fingerprints.
func Equal(a, b internal.Fingerprint) bool {
	if a.RowCount != b.RowCount || a.ColumnCount != b.ColumnCount {
		return false
	}
	if !equalStrings(a.FirstRow, b.FirstRow) {
		return false
	}
	return equalStrings(a.SheetNames, b.SheetNames)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
