package sources

import (
	"errors"
	"fmt"
)

// ErrRulesMissing signals that no parsing rules are stored and inference has
// not produced any yet.
var ErrRulesMissing = errors.New("parsing rules missing")

// SourceUnavailableError is fatal to a run: the vendor source could not be
// reached at all.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %s: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// UnsupportedFormatError is fatal to a run: the payload was fetched but
// cannot be decoded as a spreadsheet, HTML table or PDF.
type UnsupportedFormatError struct {
	Source string
	Detail string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %s: %s", e.Source, e.Detail)
}
