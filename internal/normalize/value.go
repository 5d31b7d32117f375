package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var trueTokens = map[string]struct{}{
	"да": {}, "есть": {}, "+": {}, "yes": {}, "в наличии": {}, "много": {}, "true": {},
}

var falseTokens = map[string]struct{}{
	"нет": {}, "-": {}, "no": {}, "нет в наличии": {}, "под заказ": {}, "мало": {}, "false": {},
}

// ParseBool recognizes the closed token sets vendors use for availability.
// Anything outside both sets yields nil (unknown); it never fails.
func ParseBool(input string) *bool {
	s := strings.ToLower(compact(input))
	if s == "" {
		return nil
	}
	if _, ok := trueTokens[s]; ok {
		v := true
		return &v
	}
	if _, ok := falseTokens[s]; ok {
		v := false
		return &v
	}
	return nil
}

var (
	reDecimal = regexp.MustCompile(`\d+[.,]\d+`)
	reInteger = regexp.MustCompile(`\d+`)
)

// ParseNumber pulls a quantity out of free-form cell text. Comparison
// operators and unit suffixes are stripped; a decimal with comma or dot
// separator wins over a bare integer. Returns nil, never NaN.
func ParseNumber(input string) *float64 {
	s := strings.ReplaceAll(input, " ", " ")
	s = strings.NewReplacer(">", " ", "<", " ", "≥", " ", "≤", " ").Replace(s)
	s = compact(s)
	if s == "" {
		return nil
	}

	token := reDecimal.FindString(s)
	if token == "" {
		token = reInteger.FindString(s)
	}
	if token == "" {
		return nil
	}

	parsed, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &parsed
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
}

var reDayMonthYear = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2,4})$`)

// ParseDate accepts native-parseable layouts plus an explicit day.month.year
// fallback. Dates with a year outside [1900, 2100] are rejected; persistence
// enforces the same bound again.
func ParseDate(input string) *time.Time {
	s := compact(input)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return validYear(t)
		}
	}

	m := reDayMonthYear.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return validYear(t)
}

// ValidDateYear is the persistence-time guard matching ParseDate's bound.
func ValidDateYear(t time.Time) bool {
	return t.Year() >= 1900 && t.Year() <= 2100
}

func validYear(t time.Time) *time.Time {
	if !ValidDateYear(t) {
		return nil
	}
	u := t.UTC()
	return &u
}
