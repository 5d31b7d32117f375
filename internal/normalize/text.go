// Package normalize converts raw source rows and cells into canonical fabric
// records: splitting combined collection+color cells and parsing the tolerant
// boolean/number/date formats vendors actually ship.
package normalize

import (
	"regexp"
	"strings"

	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
)

var (
	reQuotes       = regexp.MustCompile(`["'` + "`" + `«»„“”]`)
	reSpaces       = regexp.MustCompile(`\s+`)
	reLettersDigit = regexp.MustCompile(`^([^\d]+?)\s+(\d.*)$`)
)

// SplitCollectionColor breaks one combined cell into collection and color.
// Evaluation order is fixed and first-match-wins: noise phrases and quotes
// are stripped, then the configured separator split, then the first-token
// split, then the generic letters-prefix/digit-led split, and finally the
// whole text becomes the collection with an empty color. Exactly one
// strategy fires per call.
func SplitCollectionColor(text string, rr rules.Rules) (string, string) {
	s := stripNoise(text, rr.NoisePhrases)
	if s == "" {
		return "", ""
	}

	for _, rule := range rr.Split {
		switch rule.Kind {
		case rules.SplitSeparator:
			if idx := strings.Index(s, rule.Separator); idx >= 0 {
				return compact(s[:idx]), compact(s[idx+len(rule.Separator):])
			}
		case rules.SplitFirstToken:
			if fields := strings.Fields(s); len(fields) >= 2 {
				return fields[0], strings.Join(fields[1:], " ")
			}
		case rules.SplitLettersPrefix:
			if col, color, ok := splitLettersPrefix(s); ok {
				return col, color
			}
		}
	}

	// Generic pattern applies even when no vendor strategy is configured.
	if !hasSplitKind(rr, rules.SplitLettersPrefix) {
		if col, color, ok := splitLettersPrefix(s); ok {
			return col, color
		}
	}

	return s, ""
}

func splitLettersPrefix(s string) (string, string, bool) {
	m := reLettersDigit.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	prefix := compact(m[1])
	if prefix == "" || strings.ContainsAny(prefix, "0123456789") {
		return "", "", false
	}
	return prefix, compact(m[2]), true
}

func hasSplitKind(rr rules.Rules, kind rules.SplitKind) bool {
	for _, rule := range rr.Split {
		if rule.Kind == kind {
			return true
		}
	}
	return false
}

func stripNoise(text string, noisePhrases []string) string {
	s := text
	for _, phrase := range noisePhrases {
		// Whitespace-only phrases would replace themselves forever.
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		for {
			idx := strings.Index(strings.ToLower(s), strings.ToLower(phrase))
			if idx < 0 {
				break
			}
			next := s[:idx] + " " + s[idx+len(phrase):]
			if next == s {
				break
			}
			s = next
		}
	}
	s = reQuotes.ReplaceAllString(s, " ")
	return compact(s)
}

func compact(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}
