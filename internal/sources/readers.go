package sources

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// decodeRows turns a fetched or staged payload into raw rows, dispatching on
// filename extension with a content sniff fallback. Zip containers are
// unwrapped to the first spreadsheet entry inside.
func decodeRows(name string, content []byte, sheetName string) ([][]string, []string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls", ".xlsm":
		return decodeXLSXRows(name, content, sheetName)
	case ".csv", ".txt":
		return decodeCSVRows(name, content)
	case ".pdf":
		return decodePDFRows(name, content)
	case ".zip":
		inner, innerName, err := unwrapArchive(name, content)
		if err != nil {
			return nil, nil, err
		}
		return decodeRows(innerName, inner, sheetName)
	}

	// No usable extension: sniff. xlsx payloads are zip archives too, so try
	// the spreadsheet reader before treating "PK" as a container.
	if bytes.HasPrefix(content, []byte("PK")) {
		if rows, sheets, err := decodeXLSXRows(name, content, sheetName); err == nil {
			return rows, sheets, nil
		}
		inner, innerName, err := unwrapArchive(name, content)
		if err != nil {
			return nil, nil, err
		}
		return decodeRows(innerName, inner, sheetName)
	}
	if bytes.HasPrefix(content, []byte("%PDF")) {
		return decodePDFRows(name, content)
	}
	return decodeCSVRows(name, content)
}

func decodeXLSXRows(name string, content []byte, sheetName string) ([][]string, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, &UnsupportedFormatError{Source: name, Detail: err.Error()}
	}
	defer f.Close()

	sheetNames := f.GetSheetList()
	targets := sheetNames
	if sheetName != "" {
		targets = []string{sheetName}
	}

	var out [][]string
	for _, sheet := range targets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		out = append(out, rows...)
	}
	if len(out) == 0 {
		return nil, nil, &UnsupportedFormatError{Source: name, Detail: "workbook has no rows"}
	}
	return out, sheetNames, nil
}

func decodeCSVRows(name string, content []byte) ([][]string, []string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.Comma = sniffDelimiter(content)
	reader.LazyQuotes = true

	var out [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &UnsupportedFormatError{Source: name, Detail: err.Error()}
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, nil, &UnsupportedFormatError{Source: name, Detail: "empty csv"}
	}
	return out, nil, nil
}

func sniffDelimiter(content []byte) rune {
	head := content
	if idx := bytes.IndexByte(head, '\n'); idx > 0 {
		head = head[:idx]
	}
	if bytes.Count(head, []byte(";")) > bytes.Count(head, []byte(",")) {
		return ';'
	}
	return ','
}

var rePDFCellGap = regexp.MustCompile(`\s{2,}|\t`)

// decodePDFRows treats each text line of a tabular PDF as a row, splitting
// cells on runs of whitespace.
func decodePDFRows(name string, content []byte) ([][]string, []string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, nil, &UnsupportedFormatError{Source: name, Detail: err.Error()}
	}

	var out [][]string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cells := rePDFCellGap.Split(line, -1)
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
			out = append(out, cells)
		}
	}
	if len(out) == 0 {
		return nil, nil, &UnsupportedFormatError{Source: name, Detail: "pdf has no text"}
	}
	return out, nil, nil
}

var spreadsheetExts = map[string]struct{}{
	".xlsx": {}, ".xls": {}, ".xlsm": {}, ".csv": {}, ".pdf": {},
}

// unwrapArchive locates the real spreadsheet inside a compressed container.
func unwrapArchive(name string, content []byte) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, "", &UnsupportedFormatError{Source: name, Detail: err.Error()}
	}
	for _, entry := range zr.File {
		ext := strings.ToLower(filepath.Ext(entry.Name))
		if _, ok := spreadsheetExts[ext]; !ok {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			continue
		}
		inner, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			continue
		}
		return inner, entry.Name, nil
	}
	return nil, "", &UnsupportedFormatError{Source: name, Detail: "archive contains no spreadsheet"}
}
