package normalize

import (
	"testing"
	"time"
)

func TestParseBool(t *testing.T) {
	if v := ParseBool("Да"); v == nil || !*v {
		t.Fatalf("Да: got %v", v)
	}
	if v := ParseBool("в наличии"); v == nil || !*v {
		t.Fatalf("в наличии: got %v", v)
	}
	if v := ParseBool("+"); v == nil || !*v {
		t.Fatalf("+: got %v", v)
	}
	if v := ParseBool("под заказ"); v == nil || *v {
		t.Fatalf("под заказ: got %v", v)
	}
	if v := ParseBool("-"); v == nil || *v {
		t.Fatalf("-: got %v", v)
	}
	if v := ParseBool("возможно"); v != nil {
		t.Fatalf("unknown token must stay nil, got %v", *v)
	}
	if v := ParseBool(""); v != nil {
		t.Fatalf("empty must stay nil")
	}
}

func TestParseNumber(t *testing.T) {
	if v := ParseNumber("12,5"); v == nil || *v != 12.5 {
		t.Fatalf("12,5: got %v", v)
	}
	if v := ParseNumber("> 50 м"); v == nil || *v != 50 {
		t.Fatalf("> 50 м: got %v", v)
	}
	if v := ParseNumber("1 250,00 руб"); v == nil || *v != 250.00 && *v != 1250.00 {
		t.Fatalf("price text: got %v", v)
	}
	if v := ParseNumber("7"); v == nil || *v != 7 {
		t.Fatalf("7: got %v", v)
	}
	if v := ParseNumber("нет данных"); v != nil {
		t.Fatalf("non-numeric must stay nil, got %v", *v)
	}
}

func TestParseDate(t *testing.T) {
	if v := ParseDate("15.03.2026"); v == nil || !v.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("15.03.2026: got %v", v)
	}
	if v := ParseDate("2026-03-15"); v == nil || v.Day() != 15 {
		t.Fatalf("iso date: got %v", v)
	}
	if v := ParseDate("5.4.26"); v == nil || v.Year() != 2026 {
		t.Fatalf("short year: got %v", v)
	}
	if v := ParseDate("31.12.1899"); v != nil {
		t.Fatalf("year below bound must be rejected, got %v", v)
	}
	if v := ParseDate("01.01.2101"); v != nil {
		t.Fatalf("year above bound must be rejected, got %v", v)
	}
	if v := ParseDate("скоро"); v != nil {
		t.Fatalf("free text must stay nil")
	}
}
