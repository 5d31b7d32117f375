package rules

import (
	"testing"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Rules{
		ColumnMappings: map[Role]int{RoleCollection: 0, RolePrice: 4},
		SkipRows:       []int{0, 1},
		SkipPatterns:   []string{`^итого`},
		NoisePhrases:   []string{"ткань"},
		Split:          []SplitRule{{Kind: SplitSeparator, Separator: "/"}},
	}
	blob, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatal(err)
	}
	if out.ColumnMappings[RolePrice] != 4 || len(out.Split) != 1 || out.Split[0].Separator != "/" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeRejectsUnknownSplitKind(t *testing.T) {
	_, err := Decode([]byte(`{"columnMappings":{},"split":[{"kind":"regex"}]}`))
	if err == nil {
		t.Fatal("unknown split kind must fail decoding")
	}
}

func TestDecodeRejectsSeparatorWithoutValue(t *testing.T) {
	_, err := Decode([]byte(`{"columnMappings":{},"split":[{"kind":"separator"}]}`))
	if err == nil {
		t.Fatal("separator split without a separator must fail")
	}
}

func TestInferFindsHeaderRow(t *testing.T) {
	sample := [][]string{
		{"ООО Лавсит-Текстиль", "", ""},
		{"Прайс-лист от 01.03.2026", "", ""},
		{"Коллекция", "Цвет", "Наличие", "Метраж", "Цена"},
		{"Mira", "014", "да", "25", "1200"},
	}
	out := Infer(sample, DefaultsFor(internal.KindSheetURL))

	if out.HeaderRow == nil || *out.HeaderRow != 2 {
		t.Fatalf("headerRow: %v", out.HeaderRow)
	}
	if len(out.SkipRows) != 3 {
		t.Fatalf("skipRows: %v", out.SkipRows)
	}
	if out.ColumnMappings[RoleCollection] != 0 ||
		out.ColumnMappings[RoleColor] != 1 ||
		out.ColumnMappings[RoleInStock] != 2 ||
		out.ColumnMappings[RoleMeterage] != 3 ||
		out.ColumnMappings[RolePrice] != 4 {
		t.Fatalf("mappings: %v", out.ColumnMappings)
	}
}

func TestInferWithoutHeaderKeepsDefaults(t *testing.T) {
	sample := [][]string{
		{"Mira 014", "да", "25"},
		{"Verona 22", "нет", "0"},
	}
	defaults := DefaultsFor(internal.KindSheetURL)
	out := Infer(sample, defaults)

	if out.HeaderRow != nil {
		t.Fatalf("no header expected, got %d", *out.HeaderRow)
	}
	if out.ColumnMappings[RoleCollection] != defaults.ColumnMappings[RoleCollection] {
		t.Fatal("defaults must survive")
	}
	// The copy must not alias the default map.
	out.ColumnMappings[RoleCollection] = 9
	if defaults.ColumnMappings[RoleCollection] == 9 {
		t.Fatal("inferred mappings alias the defaults")
	}
}
