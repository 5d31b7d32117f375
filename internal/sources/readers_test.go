package sources

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestDecodeRowsXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"Коллекция", "Цвет"},
		{"Mira", "014"},
	})
	rows, sheets, err := decodeRows("price.xlsx", blob, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "Mira" {
		t.Fatalf("rows=%v", rows)
	}
	if len(sheets) != 1 {
		t.Fatalf("sheets=%v", sheets)
	}
}

func TestDecodeRowsXLSXWithoutExtension(t *testing.T) {
	// Content sniffing: xlsx is itself a zip, the spreadsheet reader must win.
	blob := mkXLSX(t, [][]any{{"Mira", "014"}})
	rows, _, err := decodeRows("attachment", blob, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestDecodeRowsCSV(t *testing.T) {
	content := []byte("Коллекция;Цвет;Наличие\nMira;014;да\nVerona;22;нет\n")
	rows, _, err := decodeRows("price.csv", content, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][1] != "014" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestDecodeRowsCSVCommaDelimiter(t *testing.T) {
	content := []byte("collection,color\nMira,014\n")
	rows, _, err := decodeRows("price.csv", content, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows[0]) != 2 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestDecodeRowsZipContainer(t *testing.T) {
	inner := []byte("collection;color\nMira;014\n")
	buf := bytes.NewBuffer(nil)
	zw := zip.NewWriter(buf)
	w, err := zw.Create("export.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(inner); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	rows, _, err := decodeRows("export.zip", buf.Bytes(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "Mira" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestDecodeRowsEmptyCSV(t *testing.T) {
	if _, _, err := decodeRows("empty.csv", nil, ""); err == nil {
		t.Fatal("empty payload must fail")
	}
}

func TestLooksLikeSpreadsheet(t *testing.T) {
	if !LooksLikeSpreadsheet("Остатки.xlsx", "") {
		t.Fatal("xlsx by extension")
	}
	if !LooksLikeSpreadsheet("export", "application/vnd.ms-excel") {
		t.Fatal("excel by content type")
	}
	if LooksLikeSpreadsheet("logo.png", "image/png") {
		t.Fatal("image must be rejected")
	}
}
