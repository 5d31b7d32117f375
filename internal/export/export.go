// Package export writes a supplier's catalog, or a batch of run results, to
// operator-facing files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

type Exporter struct {
	db     *storage.DB
	outDir string
}

func NewExporter(db *storage.DB, outDir string) *Exporter {
	return &Exporter{db: db, outDir: outDir}
}

// catalogRow flattens a fabric for serialization; optional fields export as
// empty cells.
type catalogRow struct {
	Collection      string `csv:"collection"`
	ColorNumber     string `csv:"color_number"`
	InStock         string `csv:"in_stock"`
	Meterage        string `csv:"meterage"`
	Price           string `csv:"price"`
	PricePerMeter   string `csv:"price_per_meter"`
	Category        string `csv:"category"`
	NextArrivalDate string `csv:"next_arrival_date"`
	Comment         string `csv:"comment"`
	LastUpdatedAt   string `csv:"last_updated_at"`
}

func toCatalogRow(f internal.Fabric) catalogRow {
	row := catalogRow{
		Collection:    f.Collection,
		ColorNumber:   f.ColorNumber,
		LastUpdatedAt: f.LastUpdatedAt,
	}
	if f.InStock != nil {
		if *f.InStock {
			row.InStock = "да"
		} else {
			row.InStock = "нет"
		}
	}
	if f.Meterage != nil {
		row.Meterage = fmt.Sprintf("%g", *f.Meterage)
	}
	if f.Price != nil {
		row.Price = fmt.Sprintf("%g", *f.Price)
	}
	if f.PricePerMeter != nil {
		row.PricePerMeter = fmt.Sprintf("%.2f", *f.PricePerMeter)
	}
	if f.Category != nil {
		row.Category = fmt.Sprintf("%d", *f.Category)
	}
	if f.NextArrivalDate != nil {
		row.NextArrivalDate = f.NextArrivalDate.Format("2006-01-02")
	}
	if f.Comment != nil {
		row.Comment = *f.Comment
	}
	return row
}

// CatalogCSV writes the supplier's non-excluded catalog and returns the file
// path.
func (e *Exporter) CatalogCSV(supplierID int64) (string, error) {
	rows, err := e.catalogRows(supplierID)
	if err != nil {
		return "", err
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return "", err
	}

	path := e.outPath(supplierID, "csv")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// CatalogXLSX writes the same catalog as a single-sheet workbook.
func (e *Exporter) CatalogXLSX(supplierID int64) (string, error) {
	rows, err := e.catalogRows(supplierID)
	if err != nil {
		return "", err
	}

	file := excelize.NewFile()
	defer file.Close()
	sheet := file.GetSheetName(0)

	header := []any{"collection", "color_number", "in_stock", "meterage", "price",
		"price_per_meter", "category", "next_arrival_date", "comment", "last_updated_at"}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		values := []any{row.Collection, row.ColorNumber, row.InStock, row.Meterage,
			row.Price, row.PricePerMeter, row.Category, row.NextArrivalDate,
			row.Comment, row.LastUpdatedAt}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return "", err
		}
	}

	path := e.outPath(supplierID, "xlsx")
	if err := file.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// RunResultsCSV dumps a fan-out's results, one line per supplier.
func (e *Exporter) RunResultsCSV(results []internal.RunResult) (string, error) {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", err
	}
	data, err := csvutil.Marshal(results)
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.outDir, fmt.Sprintf("run_%s.csv", time.Now().UTC().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Exporter) catalogRows(supplierID int64) ([]catalogRow, error) {
	fabrics, err := e.db.ListFabrics(supplierID, false)
	if err != nil {
		return nil, err
	}
	rows := make([]catalogRow, 0, len(fabrics))
	for _, f := range fabrics {
		rows = append(rows, toCatalogRow(f))
	}
	return rows, nil
}

func (e *Exporter) outPath(supplierID int64, ext string) string {
	_ = os.MkdirAll(e.outDir, 0o755)
	name := fmt.Sprintf("catalog_%d_%s.%s", supplierID, time.Now().UTC().Format("20060102"), ext)
	return filepath.Join(e.outDir, name)
}
