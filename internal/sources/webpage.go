package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
)

// WebPageAdapter scrapes inventory tables straight off a vendor page.
type WebPageAdapter struct {
	profile internal.SupplierProfile
	fetcher *Fetcher
}

func (a *WebPageAdapter) Analyze(ctx context.Context) (Analysis, error) {
	rows, err := a.fetchRows(ctx)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{SampleRows: sampleOf(rows)}, nil
}

func (a *WebPageAdapter) Parse(ctx context.Context, rr rules.Rules) (ParseResult, error) {
	rows, err := a.fetchRows(ctx)
	if err != nil {
		return ParseResult{}, err
	}
	return buildResult(rows, nil, rr), nil
}

func (a *WebPageAdapter) fetchRows(ctx context.Context) ([][]string, error) {
	pageURL := a.profile.Params.URL
	content, err := a.fetcher.Get(ctx, pageURL)
	if errors.Is(err, errNotFound) {
		return nil, &SourceUnavailableError{Source: pageURL, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return htmlTableRows(pageURL, content)
}

func htmlTableRows(source string, content []byte) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return nil, &UnsupportedFormatError{Source: source, Detail: err.Error()}
	}

	var out [][]string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
		})
		if len(cells) > 0 {
			out = append(out, cells)
		}
	})
	if len(out) == 0 {
		return nil, &UnsupportedFormatError{Source: source, Detail: "page has no table rows"}
	}
	return out, nil
}

// WebPageLinkAdapter handles vendors whose page generates a download link to
// the real spreadsheet: fetch the page, locate the link, follow it. A
// browser-rendering step would slot in before the link discovery.
type WebPageLinkAdapter struct {
	profile internal.SupplierProfile
	fetcher *Fetcher
}

func (a *WebPageLinkAdapter) Analyze(ctx context.Context) (Analysis, error) {
	rows, sheets, err := a.fetchRows(ctx)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{SampleRows: sampleOf(rows), SheetNames: sheets}, nil
}

func (a *WebPageLinkAdapter) Parse(ctx context.Context, rr rules.Rules) (ParseResult, error) {
	rows, sheets, err := a.fetchRows(ctx)
	if err != nil {
		return ParseResult{}, err
	}
	return buildResult(rows, sheets, rr), nil
}

func (a *WebPageLinkAdapter) fetchRows(ctx context.Context) ([][]string, []string, error) {
	pageURL := a.profile.Params.URL
	page, err := a.fetcher.Get(ctx, pageURL)
	if errors.Is(err, errNotFound) {
		return nil, nil, &SourceUnavailableError{Source: pageURL, Err: err}
	}
	if err != nil {
		return nil, nil, err
	}

	link, err := findDownloadLink(pageURL, page, a.profile.Params.LinkSelector)
	if err != nil {
		return nil, nil, err
	}

	content, err := a.fetcher.Get(ctx, link)
	if errors.Is(err, errNotFound) {
		return nil, nil, &SourceUnavailableError{Source: link, Err: err}
	}
	if err != nil {
		return nil, nil, err
	}
	return decodeRows(link, content, a.profile.Params.SheetName)
}

func findDownloadLink(pageURL string, page []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return "", &UnsupportedFormatError{Source: pageURL, Detail: err.Error()}
	}

	if selector == "" {
		selector = `a[href$=".xlsx"], a[href$=".xls"], a[href$=".csv"], a[href$=".zip"]`
	}

	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", &UnsupportedFormatError{Source: pageURL, Detail: fmt.Sprintf("no download link matches %q", selector)}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", &UnsupportedFormatError{Source: pageURL, Detail: err.Error()}
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", &UnsupportedFormatError{Source: pageURL, Detail: err.Error()}
	}
	return base.ResolveReference(ref).String(), nil
}
