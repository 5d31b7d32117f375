package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

func fixture(t *testing.T) (*Exporter, int64) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	id, err := db.CreateSupplier("vendor", internal.KindSheetURL, internal.SourceParams{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.CreateFabric(internal.Fabric{
		SupplierID: id, Collection: "Mira", ColorNumber: "014",
		InStock: internal.BoolPtr(true), Meterage: internal.FloatPtr(25),
		Price: internal.FloatPtr(1200), PricePerMeter: internal.FloatPtr(48),
		Category: internal.IntPtr(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.CreateFabric(internal.Fabric{
		SupplierID: id, Collection: "Hidden", ColorNumber: "9", Excluded: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	return NewExporter(db, filepath.Join(dir, "out")), id
}

func TestCatalogCSV(t *testing.T) {
	exporter, id := fixture(t)

	path, err := exporter.CatalogCSV(id)
	if err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	text := string(content)
	if !strings.Contains(text, "collection") || !strings.Contains(text, "Mira") {
		t.Fatalf("csv: %s", text)
	}
	if !strings.Contains(text, "да") {
		t.Fatalf("in_stock rendering: %s", text)
	}
	if strings.Contains(text, "Hidden") {
		t.Fatal("excluded rows must not export")
	}
}

func TestCatalogXLSX(t *testing.T) {
	exporter, id := fixture(t)

	path, err := exporter.CatalogXLSX(id)
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: %d", len(rows))
	}
	if rows[0][0] != "collection" || rows[1][0] != "Mira" {
		t.Fatalf("content: %v", rows)
	}
}

func TestRunResultsCSV(t *testing.T) {
	exporter, _ := fixture(t)

	path, err := exporter.RunResultsCSV([]internal.RunResult{
		{SupplierID: 1, SupplierName: "vendor", Success: true, Created: 2},
		{SupplierID: 2, SupplierName: "down", ErrorMessage: "status 404"},
	})
	if err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "supplier_id") || !strings.Contains(string(content), "status 404") {
		t.Fatalf("csv: %s", content)
	}
}
