// Package manual imports an operator-provided stock or price file as the
// authoritative catalog for one supplier. Unlike the parser path it replaces
// the whole non-excluded set in a single transaction and activates the
// matching override lock, so subsequent automated runs go through the gate.
package manual

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/normalize"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/reconcile"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

type Importer struct {
	db  *storage.DB
	log *slog.Logger
}

func NewImporter(db *storage.DB, log *slog.Logger) *Importer {
	return &Importer{db: db, log: log}
}

// uploadRow is the fixed header contract for operator files. Values stay raw
// strings here; normalization happens after decoding so xlsx and CSV share
// one path.
type uploadRow struct {
	Collection  string `csv:"collection"`
	ColorNumber string `csv:"color_number"`
	InStock     string `csv:"in_stock,omitempty"`
	Meterage    string `csv:"meterage,omitempty"`
	Price       string `csv:"price,omitempty"`
	NextArrival string `csv:"next_arrival_date,omitempty"`
	Comment     string `csv:"comment,omitempty"`
}

// Import reads an xlsx or CSV file and installs its rows as the supplier's
// catalog. Returns the number of installed rows.
func (im *Importer) Import(path string, supplierID int64, lockType internal.LockType) (int, error) {
	profile, err := im.db.GetSupplier(supplierID)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		return 0, fmt.Errorf("supplier %d not found", supplierID)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var rows []uploadRow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = decodeXLSX(content)
	case ".csv", ".txt":
		rows, err = decodeCSV(content)
	default:
		return 0, fmt.Errorf("manual import: unsupported extension %q", filepath.Ext(path))
	}
	if err != nil {
		return 0, err
	}

	buckets, err := im.db.ListCategories()
	if err != nil {
		return 0, err
	}

	fabrics := make([]internal.Fabric, 0, len(rows))
	seen := map[string]int{}
	for _, row := range rows {
		f, ok := toFabric(row, buckets)
		if !ok {
			continue
		}
		// Last occurrence of a repeated key wins, same as the parser path.
		if idx, dup := seen[f.Key()]; dup {
			fabrics[idx] = f
			continue
		}
		seen[f.Key()] = len(fabrics)
		fabrics = append(fabrics, f)
	}
	if len(fabrics) == 0 {
		return 0, fmt.Errorf("manual import: no usable rows in %s", filepath.Base(path))
	}

	if err := im.db.ReplaceAllFabrics(supplierID, fabrics, lockType); err != nil {
		return 0, err
	}

	im.log.Info("manual import applied",
		"supplier_id", supplierID, "supplier", profile.Name,
		"lock", string(lockType), "rows", len(fabrics), "file", filepath.Base(path))
	return len(fabrics), nil
}

func toFabric(row uploadRow, buckets []internal.CategoryBucket) (internal.Fabric, bool) {
	collection := strings.TrimSpace(row.Collection)
	color := strings.TrimSpace(row.ColorNumber)
	if collection == "" || color == "" {
		return internal.Fabric{}, false
	}

	f := internal.Fabric{
		Collection:  collection,
		ColorNumber: color,
		InStock:     normalize.ParseBool(row.InStock),
		Meterage:    normalize.ParseNumber(row.Meterage),
		Price:       normalize.ParseNumber(row.Price),
	}
	if d := normalize.ParseDate(row.NextArrival); d != nil {
		f.NextArrivalDate = d
	}
	if c := strings.TrimSpace(row.Comment); c != "" {
		f.Comment = &c
	}
	f.PricePerMeter = reconcile.PricePerMeter(f.Price, f.Meterage)
	f.Category = reconcile.CategoryFor(buckets, f.PricePerMeter)
	return f, true
}

func decodeCSV(content []byte) ([]uploadRow, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.LazyQuotes = true
	if i := bytes.IndexByte(content, '\n'); i > 0 && bytes.Count(content[:i], []byte(";")) > bytes.Count(content[:i], []byte(",")) {
		reader.Comma = ';'
	}

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, fmt.Errorf("manual import: read header: %w", err)
	}
	var rows []uploadRow
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("manual import: decode csv: %w", err)
	}
	return rows, nil
}

// decodeXLSX maps the first sheet's header row onto the CSV field names, so
// both formats accept identical column titles.
func decodeXLSX(content []byte) ([]uploadRow, error) {
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("manual import: open xlsx: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("manual import: workbook has no sheets")
	}
	cells, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(cells) < 2 {
		return nil, fmt.Errorf("manual import: sheet %q has no data rows", sheets[0])
	}

	index := map[string]int{}
	for i, title := range cells[0] {
		index[strings.ToLower(strings.TrimSpace(title))] = i
	}
	pick := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rows := make([]uploadRow, 0, len(cells)-1)
	for _, row := range cells[1:] {
		rows = append(rows, uploadRow{
			Collection:  pick(row, "collection"),
			ColorNumber: pick(row, "color_number"),
			InStock:     pick(row, "in_stock"),
			Meterage:    pick(row, "meterage"),
			Price:       pick(row, "price"),
			NextArrival: pick(row, "next_arrival_date"),
			Comment:     pick(row, "comment"),
		})
	}
	return rows, nil
}
