package rules

import "strings"

const inferScanLimit = 10

// roleProbes mirrors the header keywords seen across vendor exports. A cell
// matches a role if it contains any probe, case-insensitively.
var roleProbes = map[Role][]string{
	RoleCollection:  {"коллекц", "collection", "ткань", "наимен", "артикул", "name"},
	RoleColor:       {"цвет", "колор", "color", "колір", "тон"},
	RoleInStock:     {"наличие", "налич", "остаток", "stock", "склад"},
	RoleMeterage:    {"метраж", "метр", "кол-во", "количество", "meterage", "qty"},
	RolePrice:       {"цена", "стоимость", "price", "руб"},
	RoleNextArrival: {"дата", "поступ", "приход", "arrival", "date"},
	RoleComment:     {"комментар", "примечан", "comment", "note"},
}

// headerLexicon is the fixed set of domain keywords that flag a header row.
var headerLexicon = []string{
	"коллекц", "collection", "цвет", "color", "наличие", "остаток", "stock",
	"метраж", "meterage", "кол-во", "цена", "price", "дата", "date",
	"комментар", "comment",
}

// Infer proposes a rule set from sample rows. It scans the first ten rows for
// a header row; when found, the header row and everything above it become
// skip rows and the header cells remap column roles. Roles the header does
// not name keep the vendor defaults. Infer is best-effort and runs only when
// no rules are stored yet.
func Infer(sample [][]string, defaults Rules) Rules {
	out := defaults
	out.ColumnMappings = map[Role]int{}
	for role, idx := range defaults.ColumnMappings {
		out.ColumnMappings[role] = idx
	}

	headerRow := findHeaderRow(sample)
	if headerRow < 0 {
		return out
	}

	out.HeaderRow = &headerRow
	out.SkipRows = nil
	for i := 0; i <= headerRow; i++ {
		out.SkipRows = append(out.SkipRows, i)
	}

	for role, probes := range roleProbes {
		if idx := findHeaderIndex(sample[headerRow], probes); idx >= 0 {
			out.ColumnMappings[role] = idx
		}
	}
	return out
}

func findHeaderRow(sample [][]string) int {
	limit := len(sample)
	if limit > inferScanLimit {
		limit = inferScanLimit
	}
	for i := 0; i < limit; i++ {
		for _, cell := range sample[i] {
			lower := strings.ToLower(strings.TrimSpace(cell))
			if lower == "" {
				continue
			}
			for _, kw := range headerLexicon {
				if strings.Contains(lower, kw) {
					return i
				}
			}
		}
	}
	return -1
}

func findHeaderIndex(cells []string, probes []string) int {
	for i, cell := range cells {
		lower := strings.ToLower(strings.TrimSpace(cell))
		for _, probe := range probes {
			if strings.Contains(lower, probe) {
				return i
			}
		}
	}
	return -1
}
