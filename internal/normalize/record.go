package normalize

import (
	"regexp"
	"strings"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
)

// Any positive quantity below this many units gets an automatic annotation.
const LowStockThreshold = 10.0

const lowStockNote = "низкий остаток"

// ShouldSkipRow reports whether a raw row is excluded by the rule set's skip
// rows or skip patterns before normalization is attempted.
func ShouldSkipRow(rowIdx int, cells []string, rr rules.Rules) bool {
	if rr.SkipRow(rowIdx) {
		return true
	}
	for _, pattern := range rr.SkipPatterns {
		re, err := regexp.Compile(`(?i)` + pattern)
		if err != nil {
			continue
		}
		for _, cell := range cells {
			if re.MatchString(cell) {
				return true
			}
		}
	}
	return false
}

// FromRow converts one raw row into a canonical record under a rule set.
// The second return is false when the row carries no usable identity and
// should be counted as skipped.
func FromRow(cells []string, rr rules.Rules) (internal.ParsedRecord, bool) {
	collection, color := SplitCollectionColor(cell(cells, rr, rules.RoleCollection), rr)
	if mapped := cell(cells, rr, rules.RoleColor); mapped != "" {
		color = compact(mapped)
	}
	if collection == "" {
		return internal.ParsedRecord{}, false
	}

	rec := internal.ParsedRecord{
		Collection:  collection,
		ColorNumber: color,
		InStock:     ParseBool(cell(cells, rr, rules.RoleInStock)),
		Meterage:    ParseNumber(cell(cells, rr, rules.RoleMeterage)),
		Price:       ParseNumber(cell(cells, rr, rules.RolePrice)),
	}
	if raw := cell(cells, rr, rules.RoleNextArrival); raw != "" {
		rec.NextArrivalDate = ParseDate(raw)
	}
	if raw := compact(cell(cells, rr, rules.RoleComment)); raw != "" {
		rec.Comment = &raw
	}

	annotateLowStock(&rec)
	return rec, true
}

// annotateLowStock appends the low-stock note for positive quantities under
// the threshold. An explicit source comment is kept and concatenated.
func annotateLowStock(rec *internal.ParsedRecord) {
	if rec.Meterage == nil || *rec.Meterage <= 0 || *rec.Meterage >= LowStockThreshold {
		return
	}
	if rec.Comment == nil {
		note := lowStockNote
		rec.Comment = &note
		return
	}
	if strings.Contains(strings.ToLower(*rec.Comment), lowStockNote) {
		return
	}
	joined := *rec.Comment + "; " + lowStockNote
	rec.Comment = &joined
}

func cell(cells []string, rr rules.Rules, role rules.Role) string {
	idx, ok := rr.Column(role)
	if !ok || idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}
