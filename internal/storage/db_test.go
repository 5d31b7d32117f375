package storage

import (
	"path/filepath"
	"testing"
	"time"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testSupplier(t *testing.T, db *DB) int64 {
	t.Helper()
	id, err := db.CreateSupplier("Лавсит-Текстиль", internal.KindSheetURL, internal.SourceParams{URL: "https://example.com/price.xlsx"})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSupplierRoundTrip(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	got, err := db.GetSupplier(id)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Лавсит-Текстиль" || got.Kind != internal.KindSheetURL {
		t.Fatalf("got %+v", got)
	}
	if got.Params.URL != "https://example.com/price.xlsx" {
		t.Fatalf("params: %+v", got.Params)
	}
	if got.Status != internal.StatusActive {
		t.Fatalf("status: %s", got.Status)
	}

	missing, err := db.GetSupplier(999)
	if err != nil || missing != nil {
		t.Fatalf("missing supplier: %v %v", missing, err)
	}
}

func TestSupplierStatus(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	msg := "fetch failed"
	if err := db.SetSupplierStatus(id, internal.StatusError, &msg); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetSupplier(id)
	if got.Status != internal.StatusError || got.LastError == nil || *got.LastError != msg {
		t.Fatalf("got %+v", got)
	}

	if err := db.SetSupplierStatus(id, internal.StatusActive, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetSupplier(id)
	if got.Status != internal.StatusActive || got.LastError != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestFabricKeyLookupIsNormalized(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	arrival := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	_, err := db.CreateFabric(internal.Fabric{
		SupplierID: id, Collection: "Alfa  Prima", ColorNumber: " 014 ",
		InStock: internal.BoolPtr(true), Meterage: internal.FloatPtr(25),
		Price: internal.FloatPtr(1200), NextArrivalDate: &arrival,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.GetFabricByKey(id, "alfa prima", "014")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("normalized lookup must hit")
	}
	if got.Collection != "Alfa  Prima" {
		t.Fatalf("display form must survive, got %q", got.Collection)
	}
	if got.NextArrivalDate == nil || got.NextArrivalDate.Format("2006-01-02") != "2026-10-01" {
		t.Fatalf("arrival: %v", got.NextArrivalDate)
	}
}

func TestRulesRoundTrip(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	if blob, err := db.LoadRules(id); err != nil || blob != nil {
		t.Fatalf("fresh supplier must have no rules: %v %v", blob, err)
	}
	if err := db.SaveRules(id, []byte(`{"columnMappings":{"collection":0}}`)); err != nil {
		t.Fatal(err)
	}
	blob, err := db.LoadRules(id)
	if err != nil || blob == nil {
		t.Fatalf("load: %v %v", blob, err)
	}
	if err := db.SaveRules(id, []byte(`{"columnMappings":{"collection":1}}`)); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteRules(id); err != nil {
		t.Fatal(err)
	}
	if blob, _ := db.LoadRules(id); blob != nil {
		t.Fatal("rules must be gone after delete")
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	fp := internal.Fingerprint{RowCount: 120, ColumnCount: 7, FirstRow: []string{"Коллекция", "Цвет"}}
	if err := db.SaveFingerprint(id, fp); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadFingerprint(id)
	if err != nil || got == nil {
		t.Fatalf("load: %v %v", got, err)
	}
	if got.RowCount != 120 || got.ColumnCount != 7 || got.FirstRow[0] != "Коллекция" {
		t.Fatalf("got %+v", got)
	}
}

func TestLocks(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	if lock, err := db.GetLock(id, internal.LockStock); err != nil || lock != nil {
		t.Fatalf("fresh supplier has no lock: %v %v", lock, err)
	}
	if err := db.SetLock(id, internal.LockStock, true); err != nil {
		t.Fatal(err)
	}
	lock, err := db.GetLock(id, internal.LockStock)
	if err != nil || lock == nil || !lock.Active {
		t.Fatalf("lock: %+v %v", lock, err)
	}

	before := lock.LastParserUpdate
	time.Sleep(1100 * time.Millisecond)
	if err := db.TouchLock(id, internal.LockStock); err != nil {
		t.Fatal(err)
	}
	lock, _ = db.GetLock(id, internal.LockStock)
	if lock.LastParserUpdate == before {
		t.Fatal("touch must refresh the parser timestamp")
	}

	if err := db.SetLock(id, internal.LockStock, false); err != nil {
		t.Fatal(err)
	}
	lock, _ = db.GetLock(id, internal.LockStock)
	if lock.Active {
		t.Fatal("lock must be released")
	}
}

func TestExclusions(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	for _, color := range []string{"014", "022"} {
		if _, err := db.CreateFabric(internal.Fabric{SupplierID: id, Collection: "Mira", ColorNumber: color}); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.SetExclusion(id, "Mira", "014", true); err != nil {
		t.Fatal(err)
	}
	keys, err := db.ExcludedKeys(id)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := keys["mira|014"]; !ok || len(keys) != 1 {
		t.Fatalf("keys: %v", keys)
	}

	// Excluded rows disappear from the keyed lookup.
	if got, _ := db.GetFabricByKey(id, "Mira", "014"); got != nil {
		t.Fatal("excluded row must not resolve")
	}
	if got, _ := db.GetFabricByKey(id, "Mira", "022"); got == nil {
		t.Fatal("sibling must still resolve")
	}

	if err := db.ExcludeCollection(id, "mira"); err != nil {
		t.Fatal(err)
	}
	keys, _ = db.ExcludedKeys(id)
	if len(keys) != 2 {
		t.Fatalf("whole collection must be excluded: %v", keys)
	}

	count, err := db.CountFabrics(id)
	if err != nil || count != 0 {
		t.Fatalf("count=%d err=%v", count, err)
	}
}

func TestReplaceAllFabrics(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	if _, err := db.CreateFabric(internal.Fabric{SupplierID: id, Collection: "Old", ColorNumber: "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateFabric(internal.Fabric{SupplierID: id, Collection: "Keep", ColorNumber: "9", Excluded: true}); err != nil {
		t.Fatal(err)
	}

	replacement := []internal.Fabric{
		{Collection: "Mira", ColorNumber: "014", Meterage: internal.FloatPtr(25)},
		{Collection: "Verona", ColorNumber: "22"},
	}
	if err := db.ReplaceAllFabrics(id, replacement, internal.LockStock); err != nil {
		t.Fatal(err)
	}

	fabrics, err := db.ListFabrics(id, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(fabrics) != 2 {
		t.Fatalf("non-excluded rows after replace: %d", len(fabrics))
	}
	for _, f := range fabrics {
		if f.Collection == "Old" {
			t.Fatal("old row must be gone")
		}
	}

	// Excluded rows survive the replacement untouched.
	all, _ := db.ListFabrics(id, true)
	if len(all) != 3 {
		t.Fatalf("excluded row lost: %d", len(all))
	}

	lock, _ := db.GetLock(id, internal.LockStock)
	if lock == nil || !lock.Active {
		t.Fatal("replace must activate the lock")
	}

	sup, _ := db.GetSupplier(id)
	if sup.FabricCount != 2 || sup.LastUpdatedAt == nil {
		t.Fatalf("aggregates: %+v", sup)
	}
}

func TestAttachments(t *testing.T) {
	db := testDB(t)
	id := testSupplier(t, db)

	attID, err := db.InsertAttachment(internal.StagedAttachment{
		SupplierID: id, MessageID: "<m1@vendor>", Filename: "ostatki.xlsx",
		Hash: "abc", Path: "/tmp/abc_ostatki.xlsx", ReceivedAt: "2026-08-30T10:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}

	seen, err := db.SeenAttachmentHash(id, "abc")
	if err != nil || !seen {
		t.Fatalf("seen=%v err=%v", seen, err)
	}

	pending, err := db.LatestUnprocessedAttachment(id)
	if err != nil || pending == nil || pending.ID != attID {
		t.Fatalf("pending: %+v %v", pending, err)
	}

	if err := db.MarkAttachmentProcessed(attID); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.LatestUnprocessedAttachment(id)
	if pending != nil {
		t.Fatal("processed attachment must not be pending")
	}
}

func TestSeededCategories(t *testing.T) {
	db := testDB(t)
	buckets, err := db.ListCategories()
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 6 {
		t.Fatalf("buckets: %v", buckets)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Threshold <= buckets[i-1].Threshold {
			t.Fatalf("thresholds must ascend: %v", buckets)
		}
	}
}
