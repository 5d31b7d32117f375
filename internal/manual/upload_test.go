package manual

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

func fixture(t *testing.T) (*Importer, *storage.DB, int64, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	id, err := db.CreateSupplier("manual", internal.KindSheetURL, internal.SourceParams{})
	if err != nil {
		t.Fatal(err)
	}
	return NewImporter(db, slog.Default()), db, id, dir
}

func TestImportCSVReplacesCatalogAndLocks(t *testing.T) {
	importer, db, id, dir := fixture(t)

	// Pre-existing parser rows get replaced wholesale.
	if _, err := db.CreateFabric(internal.Fabric{SupplierID: id, Collection: "Old", ColorNumber: "1"}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "stock.csv")
	content := "collection,color_number,in_stock,meterage,price\n" +
		"Mira,014,да,\"25,5\",1200\n" +
		"Verona,22,нет,0,\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	count, err := importer.Import(path, id, internal.LockStock)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count=%d", count)
	}

	fabrics, err := db.ListFabrics(id, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(fabrics) != 2 {
		t.Fatalf("fabrics: %d", len(fabrics))
	}
	mira, _ := db.GetFabricByKey(id, "Mira", "014")
	if mira == nil || mira.Meterage == nil || *mira.Meterage != 25.5 {
		t.Fatalf("mira: %+v", mira)
	}
	if mira.PricePerMeter == nil || mira.Category == nil {
		t.Fatalf("derived fields missing: %+v", mira)
	}
	if old, _ := db.GetFabricByKey(id, "Old", "1"); old != nil {
		t.Fatal("old row must be gone")
	}

	lock, err := db.GetLock(id, internal.LockStock)
	if err != nil || lock == nil || !lock.Active {
		t.Fatalf("lock: %+v %v", lock, err)
	}
}

func TestImportRejectsEmptyFile(t *testing.T) {
	importer, _, id, dir := fixture(t)

	path := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(path, []byte("collection,color_number\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := importer.Import(path, id, internal.LockStock); err == nil {
		t.Fatal("file without usable rows must fail")
	}
}

func TestImportDeduplicatesLastWins(t *testing.T) {
	importer, db, id, dir := fixture(t)

	path := filepath.Join(dir, "dup.csv")
	content := "collection,color_number,meterage\nMira,014,10\nMira,014,33\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	count, err := importer.Import(path, id, internal.LockPrice)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count=%d", count)
	}
	got, _ := db.GetFabricByKey(id, "Mira", "014")
	if got == nil || got.Meterage == nil || *got.Meterage != 33 {
		t.Fatalf("last occurrence must win: %+v", got)
	}
}
