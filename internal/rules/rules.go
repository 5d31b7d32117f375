// Package rules holds the persisted per-supplier parsing configuration: the
// column mapping, skip rules and the ordered split strategies used to break a
// combined collection+color cell apart.
package rules

import (
	"encoding/json"
	"fmt"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
)

type Role string

const (
	RoleCollection  Role = "collection"
	RoleColor       Role = "color"
	RoleInStock     Role = "inStock"
	RoleMeterage    Role = "meterage"
	RolePrice       Role = "price"
	RoleNextArrival Role = "nextArrivalDate"
	RoleComment     Role = "comment"
)

type SplitKind string

const (
	// SplitSeparator splits on an explicit separator string.
	SplitSeparator SplitKind = "separator"
	// SplitFirstToken takes the first token as collection, the rest as color.
	SplitFirstToken SplitKind = "first-token"
	// SplitLettersPrefix takes the leading letters-only run as collection and
	// the digit-led remainder as color.
	SplitLettersPrefix SplitKind = "letters-prefix"
)

// SplitRule is one named split strategy with its typed parameters. The set is
// closed: decoding an unknown kind is an error, not a silent no-op.
type SplitRule struct {
	Kind      SplitKind `json:"kind"`
	Separator string    `json:"separator,omitempty"`
}

type Rules struct {
	ColumnMappings map[Role]int `json:"columnMappings"`
	SkipRows       []int        `json:"skipRows,omitempty"`
	SkipPatterns   []string     `json:"skipPatterns,omitempty"`
	HeaderRow      *int         `json:"headerRow,omitempty"`
	NoisePhrases   []string     `json:"noisePhrases,omitempty"`
	Split          []SplitRule  `json:"split,omitempty"`
}

// Column returns the mapped column index for a role.
func (r Rules) Column(role Role) (int, bool) {
	idx, ok := r.ColumnMappings[role]
	return idx, ok
}

func (r Rules) SkipRow(idx int) bool {
	for _, s := range r.SkipRows {
		if s == idx {
			return true
		}
	}
	return false
}

func (r Rules) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func Decode(blob []byte) (Rules, error) {
	var r Rules
	if err := json.Unmarshal(blob, &r); err != nil {
		return Rules{}, fmt.Errorf("decode parsing rules: %w", err)
	}
	for _, s := range r.Split {
		switch s.Kind {
		case SplitSeparator:
			if s.Separator == "" {
				return Rules{}, fmt.Errorf("split rule %q requires a separator", s.Kind)
			}
		case SplitFirstToken, SplitLettersPrefix:
		default:
			return Rules{}, fmt.Errorf("unknown split rule kind: %q", s.Kind)
		}
	}
	if r.ColumnMappings == nil {
		r.ColumnMappings = map[Role]int{}
	}
	return r, nil
}

// DefaultsFor is the hardcoded starting rule set for a delivery mechanism.
// Operators and the inference pass refine it; the vendor-specific regexes
// themselves are data carried in the stored rules, not code.
func DefaultsFor(kind internal.SupplierKind) Rules {
	switch kind {
	case internal.KindWebPage, internal.KindWebPageLink:
		return Rules{
			ColumnMappings: map[Role]int{
				RoleCollection: 0, RoleColor: 1, RoleInStock: 2, RoleMeterage: 3,
			},
			Split: []SplitRule{{Kind: SplitLettersPrefix}},
		}
	case internal.KindEmail:
		return Rules{
			ColumnMappings: map[Role]int{
				RoleCollection: 0, RoleMeterage: 1, RolePrice: 2, RoleComment: 3,
			},
			Split: []SplitRule{
				{Kind: SplitSeparator, Separator: "/"},
				{Kind: SplitLettersPrefix},
			},
		}
	default:
		return Rules{
			ColumnMappings: map[Role]int{
				RoleCollection: 0, RoleColor: 1, RoleInStock: 2, RoleMeterage: 3,
				RolePrice: 4, RoleNextArrival: 5, RoleComment: 6,
			},
			Split: []SplitRule{{Kind: SplitLettersPrefix}},
		}
	}
}
