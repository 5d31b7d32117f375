// Package sources hosts the per-delivery-mechanism adapters behind one
// capability interface. Dispatch from supplier identity to adapter is a flat
// registry lookup; vendor-specific fetch logic (dated-URL windows, archive
// unwrapping, generated download links) stays inside the variants.
package sources

import (
	"context"
	"fmt"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/drift"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/normalize"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
)

// Analysis is the sample an adapter exposes for rule inference.
type Analysis struct {
	SampleRows [][]string
	SheetNames []string
}

// ParseResult carries the normalized records plus the row accounting and the
// layout fingerprint of this fetch.
type ParseResult struct {
	Records     []internal.ParsedRecord
	RowsRead    int
	RowsSkipped int
	Fingerprint internal.Fingerprint
}

// Adapter is the shared fetch+parse capability. Parse returns a typed
// SourceUnavailableError or UnsupportedFormatError for fatal conditions;
// row-level issues are skipped and counted, never raised.
type Adapter interface {
	Analyze(ctx context.Context) (Analysis, error)
	Parse(ctx context.Context, rr rules.Rules) (ParseResult, error)
}

// FileValidator is implemented by adapters that consume locally staged files
// (email attachments); the selector uses it to vet candidates.
type FileValidator interface {
	ValidateFile(path string) bool
}

// Deps are the collaborator handles a factory may need.
type Deps struct {
	Fetcher *Fetcher
	// StagedFile is the staged attachment path for file-consuming adapters.
	StagedFile string
}

type Factory func(profile internal.SupplierProfile, deps Deps) (Adapter, error)

var registry = map[internal.SupplierKind]Factory{}

func Register(kind internal.SupplierKind, factory Factory) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("adapter already registered: %s", kind))
	}
	registry[kind] = factory
}

// ForProfile resolves the adapter for a supplier profile.
func ForProfile(profile internal.SupplierProfile, deps Deps) (Adapter, error) {
	factory, ok := registry[profile.Kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for kind %q", profile.Kind)
	}
	return factory(profile, deps)
}

func init() {
	Register(internal.KindSheetURL, func(p internal.SupplierProfile, d Deps) (Adapter, error) {
		return &SheetURLAdapter{profile: p, fetcher: d.Fetcher}, nil
	})
	Register(internal.KindSheetURLDated, func(p internal.SupplierProfile, d Deps) (Adapter, error) {
		return &DatedSheetAdapter{profile: p, fetcher: d.Fetcher}, nil
	})
	Register(internal.KindWebPage, func(p internal.SupplierProfile, d Deps) (Adapter, error) {
		return &WebPageAdapter{profile: p, fetcher: d.Fetcher}, nil
	})
	Register(internal.KindWebPageLink, func(p internal.SupplierProfile, d Deps) (Adapter, error) {
		return &WebPageLinkAdapter{profile: p, fetcher: d.Fetcher}, nil
	})
	Register(internal.KindEmail, func(p internal.SupplierProfile, d Deps) (Adapter, error) {
		return &AttachmentAdapter{Path: d.StagedFile, SheetName: p.Params.SheetName}, nil
	})
}

// rowsToRecords runs the normalizer over raw rows, applying skip rules and
// counting rows that yield nothing.
func rowsToRecords(rows [][]string, rr rules.Rules) ([]internal.ParsedRecord, int) {
	records := make([]internal.ParsedRecord, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if normalize.ShouldSkipRow(i, row, rr) {
			skipped++
			continue
		}
		rec, ok := normalize.FromRow(row, rr)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func buildResult(rows [][]string, sheetNames []string, rr rules.Rules) ParseResult {
	records, skipped := rowsToRecords(rows, rr)
	return ParseResult{
		Records:     records,
		RowsRead:    len(rows),
		RowsSkipped: skipped,
		Fingerprint: drift.FromRows(rows, sheetNames),
	}
}

func sampleOf(rows [][]string) [][]string {
	if len(rows) > 10 {
		return rows[:10]
	}
	return rows
}
