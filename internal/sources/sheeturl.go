package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
)

// SheetURLAdapter fetches a spreadsheet (xlsx or CSV) from a fixed URL.
type SheetURLAdapter struct {
	profile internal.SupplierProfile
	fetcher *Fetcher
}

func (a *SheetURLAdapter) Analyze(ctx context.Context) (Analysis, error) {
	rows, sheets, err := a.fetchRows(ctx)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{SampleRows: sampleOf(rows), SheetNames: sheets}, nil
}

func (a *SheetURLAdapter) Parse(ctx context.Context, rr rules.Rules) (ParseResult, error) {
	rows, sheets, err := a.fetchRows(ctx)
	if err != nil {
		return ParseResult{}, err
	}
	return buildResult(rows, sheets, rr), nil
}

func (a *SheetURLAdapter) fetchRows(ctx context.Context) ([][]string, []string, error) {
	url := a.profile.Params.URL
	content, err := a.fetcher.Get(ctx, url)
	if errors.Is(err, errNotFound) {
		return nil, nil, &SourceUnavailableError{Source: url, Err: err}
	}
	if err != nil {
		return nil, nil, err
	}
	return decodeRows(url, content, a.profile.Params.SheetName)
}

const datePlaceholder = "{date}"

// DatedSheetAdapter retries a dated URL pattern across a bounded day window,
// newest day first. Vendors that publish one export per day and skip weekends
// need this.
type DatedSheetAdapter struct {
	profile internal.SupplierProfile
	fetcher *Fetcher
}

func (a *DatedSheetAdapter) Analyze(ctx context.Context) (Analysis, error) {
	rows, sheets, _, err := a.fetchRows(ctx)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{SampleRows: sampleOf(rows), SheetNames: sheets}, nil
}

func (a *DatedSheetAdapter) Parse(ctx context.Context, rr rules.Rules) (ParseResult, error) {
	rows, sheets, _, err := a.fetchRows(ctx)
	if err != nil {
		return ParseResult{}, err
	}
	return buildResult(rows, sheets, rr), nil
}

func (a *DatedSheetAdapter) fetchRows(ctx context.Context) ([][]string, []string, string, error) {
	pattern := a.profile.Params.URLDatePattern
	if !strings.Contains(pattern, datePlaceholder) {
		return nil, nil, "", &SourceUnavailableError{Source: pattern, Err: fmt.Errorf("url pattern has no %s placeholder", datePlaceholder)}
	}
	layout := a.profile.Params.DateLayout
	if layout == "" {
		layout = "02.01.2006"
	}
	window := a.profile.Params.DayWindow
	if window <= 0 {
		window = 14
	}

	now := time.Now()
	var lastErr error
	for back := 0; back < window; back++ {
		day := now.AddDate(0, 0, -back)
		url := strings.ReplaceAll(pattern, datePlaceholder, day.Format(layout))

		content, err := a.fetcher.Get(ctx, url)
		if errors.Is(err, errNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, nil, "", err
		}

		rows, sheets, err := decodeRows(url, content, a.profile.Params.SheetName)
		if err != nil {
			return nil, nil, "", err
		}
		return rows, sheets, url, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no export found in %d-day window", window)
	}
	return nil, nil, "", &SourceUnavailableError{Source: pattern, Err: lastErr}
}
