package sources

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
)

// AttachmentAdapter parses a locally staged email attachment: xlsx, CSV, PDF
// or a zip container holding one of those.
type AttachmentAdapter struct {
	Path      string
	SheetName string
}

func (a *AttachmentAdapter) Analyze(ctx context.Context) (Analysis, error) {
	rows, sheets, err := a.readRows()
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{SampleRows: sampleOf(rows), SheetNames: sheets}, nil
}

func (a *AttachmentAdapter) Parse(ctx context.Context, rr rules.Rules) (ParseResult, error) {
	rows, sheets, err := a.readRows()
	if err != nil {
		return ParseResult{}, err
	}
	return buildResult(rows, sheets, rr), nil
}

// ValidateFile reports whether a staged candidate decodes into at least one
// row. The selector calls this before a candidate is recorded; failures
// discard the candidate, they are never fatal.
func (a *AttachmentAdapter) ValidateFile(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	rows, _, err := decodeRows(path, content, a.SheetName)
	return err == nil && len(rows) > 0
}

// LooksLikeSpreadsheet filters attachment filenames/MIME types worth staging.
func LooksLikeSpreadsheet(filename, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx", ".xls", ".xlsm", ".csv", ".zip", ".pdf":
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "spreadsheet") ||
		strings.Contains(ct, "ms-excel") ||
		strings.Contains(ct, "csv") ||
		strings.Contains(ct, "zip") ||
		strings.Contains(ct, "pdf")
}

func (a *AttachmentAdapter) readRows() ([][]string, []string, error) {
	content, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, nil, &SourceUnavailableError{Source: a.Path, Err: err}
	}
	return decodeRows(a.Path, content, a.SheetName)
}
