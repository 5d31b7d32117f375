package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// Pragmas go through the DSN so every pooled connection gets them; the
	// busy timeout keeps concurrent batch upserts queueing instead of
	// failing with SQLITE_BUSY.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS suppliers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  kind TEXT NOT NULL,
  paramsJson TEXT NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'active',
  lastError TEXT,
  fabricCount INTEGER NOT NULL DEFAULT 0,
  lastUpdatedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS parsing_rules (
  supplierId INTEGER PRIMARY KEY,
  rulesJson TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS fabrics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplierId INTEGER NOT NULL,
  collection TEXT NOT NULL,
  colorNumber TEXT NOT NULL,
  collectionNorm TEXT NOT NULL,
  colorNorm TEXT NOT NULL,
  inStock INTEGER,
  meterage REAL,
  price REAL,
  pricePerMeter REAL,
  category INTEGER,
  nextArrivalDate TEXT,
  comment TEXT,
  excluded INTEGER NOT NULL DEFAULT 0,
  lastUpdatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fabrics_key
  ON fabrics(supplierId, collectionNorm, colorNorm) WHERE excluded = 0;
CREATE INDEX IF NOT EXISTS idx_fabrics_supplier ON fabrics(supplierId);

CREATE TABLE IF NOT EXISTS override_locks (
  supplierId INTEGER NOT NULL,
  type TEXT NOT NULL,
  isActive INTEGER NOT NULL DEFAULT 0,
  lastParserUpdate TEXT,
  PRIMARY KEY(supplierId, type),
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS fingerprints (
  supplierId INTEGER PRIMARY KEY,
  fingerprintJson TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS attachments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplierId INTEGER NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  receivedAt TEXT,
  filename TEXT NOT NULL,
  hash TEXT NOT NULL,
  path TEXT NOT NULL,
  processed INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS categories (
  category INTEGER PRIMARY KEY,
  threshold REAL NOT NULL
);
`

	if _, err := d.conn.Exec(schema); err != nil {
		return err
	}
	return d.seedCategories()
}

// Default price-per-meter tiers, retunable by operators in place.
func (d *DB) seedCategories() error {
	var count int
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	defaults := []internal.CategoryBucket{
		{Category: 1, Threshold: 550},
		{Category: 2, Threshold: 650},
		{Category: 3, Threshold: 800},
		{Category: 4, Threshold: 1000},
		{Category: 5, Threshold: 1300},
		{Category: 6, Threshold: 1700},
	}
	for _, b := range defaults {
		if _, err := d.conn.Exec(`INSERT INTO categories (category, threshold) VALUES (?, ?)`, b.Category, b.Threshold); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) ListCategories() ([]internal.CategoryBucket, error) {
	rows, err := d.conn.Query(`SELECT category, threshold FROM categories ORDER BY threshold ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CategoryBucket
	for rows.Next() {
		var b internal.CategoryBucket
		if err := rows.Scan(&b.Category, &b.Threshold); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) CreateSupplier(name string, kind internal.SupplierKind, params internal.SourceParams) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	result, err := d.conn.Exec(`
INSERT INTO suppliers (name, kind, paramsJson) VALUES (?, ?, ?)
`, name, string(kind), string(paramsJSON))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) GetSupplier(id int64) (*internal.SupplierProfile, error) {
	row := d.conn.QueryRow(`
SELECT id, name, kind, paramsJson, status, lastError, fabricCount, lastUpdatedAt
FROM suppliers WHERE id = ?
`, id)
	return scanSupplier(row)
}

func (d *DB) ListSuppliers() ([]internal.SupplierProfile, error) {
	rows, err := d.conn.Query(`
SELECT id, name, kind, paramsJson, status, lastError, fabricCount, lastUpdatedAt
FROM suppliers ORDER BY id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SupplierProfile
	for rows.Next() {
		p, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupplier(row rowScanner) (*internal.SupplierProfile, error) {
	var p internal.SupplierProfile
	var kind, paramsJSON, status string
	err := row.Scan(&p.ID, &p.Name, &kind, &paramsJSON, &status, &p.LastError, &p.FabricCount, &p.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Kind = internal.SupplierKind(kind)
	p.Status = internal.SupplierStatus(status)
	if err := json.Unmarshal([]byte(paramsJSON), &p.Params); err != nil {
		return nil, fmt.Errorf("supplier %d params: %w", p.ID, err)
	}
	return &p, nil
}

func (d *DB) SetSupplierStatus(id int64, status internal.SupplierStatus, lastError *string) error {
	_, err := d.conn.Exec(`
UPDATE suppliers SET status = ?, lastError = ? WHERE id = ?
`, string(status), lastError, id)
	return err
}

// RefreshSupplierAggregates recomputes the cached non-excluded fabric count
// and stamps lastUpdatedAt.
func (d *DB) RefreshSupplierAggregates(id int64) error {
	_, err := d.conn.Exec(`
UPDATE suppliers SET
  fabricCount = (SELECT COUNT(*) FROM fabrics WHERE supplierId = ? AND excluded = 0),
  lastUpdatedAt = ?
WHERE id = ?
`, id, nowUTC(), id)
	return err
}

func (d *DB) LoadRules(supplierID int64) ([]byte, error) {
	var blob string
	err := d.conn.QueryRow(`SELECT rulesJson FROM parsing_rules WHERE supplierId = ?`, supplierID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

func (d *DB) SaveRules(supplierID int64, blob []byte) error {
	_, err := d.conn.Exec(`
INSERT INTO parsing_rules (supplierId, rulesJson) VALUES (?, ?)
ON CONFLICT(supplierId) DO UPDATE SET rulesJson = excluded.rulesJson, updatedAt = CURRENT_TIMESTAMP
`, supplierID, string(blob))
	return err
}

func (d *DB) DeleteRules(supplierID int64) error {
	_, err := d.conn.Exec(`DELETE FROM parsing_rules WHERE supplierId = ?`, supplierID)
	return err
}

func (d *DB) SaveFingerprint(supplierID int64, fp internal.Fingerprint) error {
	blob, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO fingerprints (supplierId, fingerprintJson) VALUES (?, ?)
ON CONFLICT(supplierId) DO UPDATE SET fingerprintJson = excluded.fingerprintJson, updatedAt = CURRENT_TIMESTAMP
`, supplierID, string(blob))
	return err
}

func (d *DB) LoadFingerprint(supplierID int64) (*internal.Fingerprint, error) {
	var blob string
	err := d.conn.QueryRow(`SELECT fingerprintJson FROM fingerprints WHERE supplierId = ?`, supplierID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fp internal.Fingerprint
	if err := json.Unmarshal([]byte(blob), &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

func (d *DB) GetLock(supplierID int64, lockType internal.LockType) (*internal.OverrideLock, error) {
	var lock internal.OverrideLock
	var active int
	var lastUpdate sql.NullString
	err := d.conn.QueryRow(`
SELECT supplierId, type, isActive, lastParserUpdate FROM override_locks WHERE supplierId = ? AND type = ?
`, supplierID, string(lockType)).Scan(&lock.SupplierID, &lock.Type, &active, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lock.Active = active != 0
	lock.LastParserUpdate = lastUpdate.String
	return &lock, nil
}

func (d *DB) SetLock(supplierID int64, lockType internal.LockType, active bool) error {
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := d.conn.Exec(`
INSERT INTO override_locks (supplierId, type, isActive, lastParserUpdate) VALUES (?, ?, ?, ?)
ON CONFLICT(supplierId, type) DO UPDATE SET isActive = excluded.isActive
`, supplierID, string(lockType), activeInt, nowUTC())
	return err
}

// TouchLock refreshes only the lock's parser timestamp; the gate calls this
// when it decides to skip all writes.
func (d *DB) TouchLock(supplierID int64, lockType internal.LockType) error {
	_, err := d.conn.Exec(`
UPDATE override_locks SET lastParserUpdate = ? WHERE supplierId = ? AND type = ?
`, nowUTC(), supplierID, string(lockType))
	return err
}

func (d *DB) CreateFabric(f internal.Fabric) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO fabrics (
  supplierId, collection, colorNumber, collectionNorm, colorNorm,
  inStock, meterage, price, pricePerMeter, category, nextArrivalDate, comment, excluded, lastUpdatedAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, f.SupplierID, f.Collection, f.ColorNumber,
		internal.NormalizeKeyPart(f.Collection), internal.NormalizeKeyPart(f.ColorNumber),
		boolToNull(f.InStock), f.Meterage, f.Price, f.PricePerMeter, f.Category,
		dateToNull(f.NextArrivalDate), f.Comment, boolToInt(f.Excluded), nowUTC())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) UpdateFabric(f internal.Fabric) error {
	_, err := d.conn.Exec(`
UPDATE fabrics SET
  collection = ?, colorNumber = ?, collectionNorm = ?, colorNorm = ?,
  inStock = ?, meterage = ?, price = ?, pricePerMeter = ?, category = ?,
  nextArrivalDate = ?, comment = ?, lastUpdatedAt = ?
WHERE id = ?
`, f.Collection, f.ColorNumber,
		internal.NormalizeKeyPart(f.Collection), internal.NormalizeKeyPart(f.ColorNumber),
		boolToNull(f.InStock), f.Meterage, f.Price, f.PricePerMeter, f.Category,
		dateToNull(f.NextArrivalDate), f.Comment, nowUTC(), f.ID)
	return err
}

// GetFabricByKey looks up the non-excluded row for a normalized identity.
func (d *DB) GetFabricByKey(supplierID int64, collection, colorNumber string) (*internal.Fabric, error) {
	row := d.conn.QueryRow(`
SELECT id, supplierId, collection, colorNumber, inStock, meterage, price, pricePerMeter,
       category, nextArrivalDate, comment, excluded, lastUpdatedAt
FROM fabrics
WHERE supplierId = ? AND collectionNorm = ? AND colorNorm = ? AND excluded = 0
`, supplierID, internal.NormalizeKeyPart(collection), internal.NormalizeKeyPart(colorNumber))
	return scanFabric(row)
}

func (d *DB) ListFabrics(supplierID int64, includeExcluded bool) ([]internal.Fabric, error) {
	query := `
SELECT id, supplierId, collection, colorNumber, inStock, meterage, price, pricePerMeter,
       category, nextArrivalDate, comment, excluded, lastUpdatedAt
FROM fabrics WHERE supplierId = ?`
	if !includeExcluded {
		query += ` AND excluded = 0`
	}
	query += ` ORDER BY collectionNorm, colorNorm`

	rows, err := d.conn.Query(query, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Fabric
	for rows.Next() {
		f, err := scanFabric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFabric(row rowScanner) (*internal.Fabric, error) {
	var f internal.Fabric
	var inStock sql.NullInt64
	var arrival sql.NullString
	var excluded int
	err := row.Scan(&f.ID, &f.SupplierID, &f.Collection, &f.ColorNumber, &inStock,
		&f.Meterage, &f.Price, &f.PricePerMeter, &f.Category, &arrival, &f.Comment,
		&excluded, &f.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if inStock.Valid {
		v := inStock.Int64 != 0
		f.InStock = &v
	}
	if arrival.Valid && arrival.String != "" {
		if t, err := time.Parse("2006-01-02", arrival.String); err == nil {
			f.NextArrivalDate = &t
		}
	}
	f.Excluded = excluded != 0
	return &f, nil
}

func (d *DB) CountFabrics(supplierID int64) (int, error) {
	var count int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM fabrics WHERE supplierId = ? AND excluded = 0`, supplierID).Scan(&count)
	return count, err
}

// SetExclusion flips the exclusion marker on one identity. Excluding an item
// hides it from lookups and reconciliation until cleared.
func (d *DB) SetExclusion(supplierID int64, collection, colorNumber string, excluded bool) error {
	_, err := d.conn.Exec(`
UPDATE fabrics SET excluded = ?, lastUpdatedAt = ?
WHERE supplierId = ? AND collectionNorm = ? AND colorNorm = ?
`, boolToInt(excluded), nowUTC(), supplierID,
		internal.NormalizeKeyPart(collection), internal.NormalizeKeyPart(colorNumber))
	return err
}

// ExcludeCollection marks every color of a collection at once.
func (d *DB) ExcludeCollection(supplierID int64, collection string) error {
	_, err := d.conn.Exec(`
UPDATE fabrics SET excluded = 1, lastUpdatedAt = ?
WHERE supplierId = ? AND collectionNorm = ?
`, nowUTC(), supplierID, internal.NormalizeKeyPart(collection))
	return err
}

// ExcludedKeys returns the normalized keys of every excluded row for a
// supplier.
func (d *DB) ExcludedKeys(supplierID int64) (map[string]struct{}, error) {
	rows, err := d.conn.Query(`
SELECT collectionNorm, colorNorm FROM fabrics WHERE supplierId = ? AND excluded = 1
`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var collection, color string
		if err := rows.Scan(&collection, &color); err != nil {
			return nil, err
		}
		out[collection+"|"+color] = struct{}{}
	}
	return out, rows.Err()
}

// ReplaceAllFabrics is the all-or-nothing lifecycle: inside one transaction
// it deletes every non-excluded row for the supplier and recreates the given
// set, activating the matching override lock. Only the manual-upload path
// calls this.
func (d *DB) ReplaceAllFabrics(supplierID int64, fabrics []internal.Fabric, lockType internal.LockType) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM fabrics WHERE supplierId = ? AND excluded = 0`, supplierID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO fabrics (
  supplierId, collection, colorNumber, collectionNorm, colorNorm,
  inStock, meterage, price, pricePerMeter, category, nextArrivalDate, comment, excluded, lastUpdatedAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range fabrics {
		if _, err := stmt.Exec(supplierID, f.Collection, f.ColorNumber,
			internal.NormalizeKeyPart(f.Collection), internal.NormalizeKeyPart(f.ColorNumber),
			boolToNull(f.InStock), f.Meterage, f.Price, f.PricePerMeter, f.Category,
			dateToNull(f.NextArrivalDate), f.Comment, nowUTC()); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
INSERT INTO override_locks (supplierId, type, isActive, lastParserUpdate) VALUES (?, ?, 1, ?)
ON CONFLICT(supplierId, type) DO UPDATE SET isActive = 1
`, supplierID, string(lockType), nowUTC()); err != nil {
		return err
	}

	if _, err := tx.Exec(`
UPDATE suppliers SET
  fabricCount = (SELECT COUNT(*) FROM fabrics WHERE supplierId = ? AND excluded = 0),
  lastUpdatedAt = ?
WHERE id = ?
`, supplierID, nowUTC(), supplierID); err != nil {
		return err
	}

	return tx.Commit()
}

func (d *DB) InsertAttachment(att internal.StagedAttachment) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO attachments (supplierId, messageId, subject, receivedAt, filename, hash, path, processed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, att.SupplierID, att.MessageID, att.Subject, att.ReceivedAt, att.Filename, att.Hash, att.Path, boolToInt(att.Processed))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) MarkAttachmentProcessed(id int64) error {
	_, err := d.conn.Exec(`UPDATE attachments SET processed = 1 WHERE id = ?`, id)
	return err
}

// LatestUnprocessedAttachment returns the newest tracked attachment awaiting
// parsing, or nil.
func (d *DB) LatestUnprocessedAttachment(supplierID int64) (*internal.StagedAttachment, error) {
	var att internal.StagedAttachment
	var processed int
	err := d.conn.QueryRow(`
SELECT id, supplierId, messageId, subject, receivedAt, filename, hash, path, processed
FROM attachments WHERE supplierId = ? AND processed = 0
ORDER BY receivedAt DESC, id DESC LIMIT 1
`, supplierID).Scan(&att.ID, &att.SupplierID, &att.MessageID, &att.Subject,
		&att.ReceivedAt, &att.Filename, &att.Hash, &att.Path, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	att.Processed = processed != 0
	return &att, nil
}

func (d *DB) SeenAttachmentHash(supplierID int64, hash string) (bool, error) {
	var count int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM attachments WHERE supplierId = ? AND hash = ?`, supplierID, hash).Scan(&count)
	return count > 0, err
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func boolToNull(v *bool) any {
	if v == nil {
		return nil
	}
	return boolToInt(*v)
}

// Dates persist as YYYY-MM-DD; out-of-range years are dropped here as well
// as at parse time.
func dateToNull(v *time.Time) any {
	if v == nil {
		return nil
	}
	if v.Year() < 1900 || v.Year() > 2100 {
		return nil
	}
	return v.Format("2006-01-02")
}
