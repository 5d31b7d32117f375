// Package reconcile merges normalized records into the persisted catalog
// under the exclusion-marker and manual-override-lock constraints.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

type Engine struct {
	db        *storage.DB
	batchSize int
	log       *slog.Logger
}

func NewEngine(db *storage.DB, batchSize int, log *slog.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Engine{db: db, batchSize: batchSize, log: log}
}

type Counts struct {
	Created          int
	Updated          int
	SkippedExcluded  int
	SkippedUnchanged int
	Failed           int
}

// Reconcile runs the gated per-record upsert lifecycle. There is no
// transaction around the whole run: a crash mid-run leaves a partial update,
// which is the accepted trade-off of this path. The all-or-nothing lifecycle
// lives in the manual-upload package only.
func (e *Engine) Reconcile(ctx context.Context, supplierID int64, records []internal.ParsedRecord) (Counts, error) {
	records = dedupeByKey(records)

	persisted, err := e.db.ListFabrics(supplierID, false)
	if err != nil {
		return Counts{}, err
	}

	proceed, touched, err := e.passGate(supplierID, persisted, records)
	if err != nil {
		return Counts{}, err
	}
	if !proceed {
		e.log.Info("update gate closed, skipping writes", "locks_touched", touched)
		return Counts{SkippedUnchanged: len(records)}, nil
	}

	excluded, err := e.db.ExcludedKeys(supplierID)
	if err != nil {
		return Counts{}, err
	}

	counts := Counts{}
	kept := records[:0]
	for _, rec := range records {
		if _, hit := excluded[rec.Key()]; hit {
			counts.SkippedExcluded++
			continue
		}
		kept = append(kept, rec)
	}

	buckets, err := e.db.ListCategories()
	if err != nil {
		return Counts{}, err
	}

	byKey := map[string]internal.Fabric{}
	for _, f := range persisted {
		byKey[f.Key()] = f
	}

	// Upserts run in fixed-size batches: concurrent inside one batch,
	// batches strictly one after another.
	var mu sync.Mutex
	for start := 0; start < len(kept); start += e.batchSize {
		end := start + e.batchSize
		if end > len(kept) {
			end = len(kept)
		}

		var wg sync.WaitGroup
		for _, rec := range kept[start:end] {
			wg.Add(1)
			go func(rec internal.ParsedRecord) {
				defer wg.Done()
				outcome, err := e.upsertOne(supplierID, rec, byKey[rec.Key()], buckets)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					e.log.Warn("upsert failed", "collection", rec.Collection, "color", rec.ColorNumber, "error", err)
					counts.Failed++
					return
				}
				switch outcome {
				case outcomeCreated:
					counts.Created++
				case outcomeUpdated:
					counts.Updated++
				case outcomeUnchanged:
					counts.SkippedUnchanged++
				}
			}(rec)
		}
		wg.Wait()

		select {
		case <-ctx.Done():
			return counts, ctx.Err()
		default:
		}
	}

	return counts, nil
}

type upsertOutcome int

const (
	outcomeCreated upsertOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (e *Engine) upsertOne(supplierID int64, rec internal.ParsedRecord, existing internal.Fabric, buckets []internal.CategoryBucket) (upsertOutcome, error) {
	ppm := PricePerMeter(rec.Price, rec.Meterage)

	next := internal.Fabric{
		SupplierID:      supplierID,
		Collection:      rec.Collection,
		ColorNumber:     rec.ColorNumber,
		InStock:         rec.InStock,
		Meterage:        rec.Meterage,
		Price:           rec.Price,
		PricePerMeter:   ppm,
		Category:        CategoryFor(buckets, ppm),
		NextArrivalDate: rec.NextArrivalDate,
		Comment:         rec.Comment,
	}

	if existing.ID == 0 {
		_, err := e.db.CreateFabric(next)
		if err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	if fabricUnchanged(existing, next) {
		return outcomeUnchanged, nil
	}

	next.ID = existing.ID
	if err := e.db.UpdateFabric(next); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

// passGate applies the manual-override check. Without an active lock writes
// proceed unconditionally. Under a lock, writes proceed only when the parsed
// set visibly differs from the persisted one; otherwise every active lock's
// parser timestamp is refreshed and the run reports zero changes.
func (e *Engine) passGate(supplierID int64, persisted []internal.Fabric, parsed []internal.ParsedRecord) (bool, int, error) {
	var active []internal.LockType
	for _, lockType := range []internal.LockType{internal.LockStock, internal.LockPrice} {
		lock, err := e.db.GetLock(supplierID, lockType)
		if err != nil {
			return false, 0, err
		}
		if lock != nil && lock.Active {
			active = append(active, lockType)
		}
	}
	if len(active) == 0 {
		return true, 0, nil
	}

	if setsDiffer(persisted, parsed) {
		return true, 0, nil
	}

	for _, lockType := range active {
		if err := e.db.TouchLock(supplierID, lockType); err != nil {
			return false, 0, err
		}
	}
	return false, len(active), nil
}

func setsDiffer(persisted []internal.Fabric, parsed []internal.ParsedRecord) bool {
	if (len(persisted) == 0) != (len(parsed) == 0) {
		return true
	}

	persistedByKey := map[string]internal.Fabric{}
	for _, f := range persisted {
		persistedByKey[f.Key()] = f
	}
	parsedKeys := map[string]internal.ParsedRecord{}
	for _, r := range parsed {
		parsedKeys[r.Key()] = r
	}
	if len(persistedByKey) != len(parsedKeys) {
		return true
	}

	for key, rec := range parsedKeys {
		f, ok := persistedByKey[key]
		if !ok {
			return true
		}
		if !boolPtrEqual(f.InStock, rec.InStock) || !floatPtrEqual(f.Meterage, rec.Meterage) {
			return true
		}
	}
	return false
}

// PricePerMeter is price/meterage when both are positive, else nil.
func PricePerMeter(price, meterage *float64) *float64 {
	if price == nil || meterage == nil || *price <= 0 || *meterage <= 0 {
		return nil
	}
	v := *price / *meterage
	return &v
}

// CategoryFor scans ascending-threshold buckets: a bucket matches when the
// value is strictly above the previous threshold and at or below its own;
// the last bucket instead takes anything at or above its threshold.
func CategoryFor(buckets []internal.CategoryBucket, ppm *float64) *int {
	if ppm == nil || len(buckets) == 0 {
		return nil
	}
	prev := 0.0
	for i, b := range buckets {
		if i == len(buckets)-1 {
			if *ppm >= b.Threshold {
				c := b.Category
				return &c
			}
		} else if *ppm > prev && *ppm <= b.Threshold {
			c := b.Category
			return &c
		}
		prev = b.Threshold
	}
	return nil
}

// dedupeByKey keeps the last occurrence of each normalized key so a vendor
// file that repeats a position wins with its final row.
func dedupeByKey(records []internal.ParsedRecord) []internal.ParsedRecord {
	lastIdx := map[string]int{}
	for i, rec := range records {
		lastIdx[rec.Key()] = i
	}
	out := make([]internal.ParsedRecord, 0, len(lastIdx))
	for i, rec := range records {
		if lastIdx[rec.Key()] == i {
			out = append(out, rec)
		}
	}
	return out
}

func fabricUnchanged(a, b internal.Fabric) bool {
	return a.Collection == b.Collection &&
		a.ColorNumber == b.ColorNumber &&
		boolPtrEqual(a.InStock, b.InStock) &&
		floatPtrEqual(a.Meterage, b.Meterage) &&
		floatPtrEqual(a.Price, b.Price) &&
		timePtrEqual(a.NextArrivalDate, b.NextArrivalDate) &&
		stringPtrEqual(a.Comment, b.Comment)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
