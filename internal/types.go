package internal

import (
	"strings"
	"time"
)

type SupplierKind string

const (
	KindSheetURL      SupplierKind = "sheet_url"
	KindSheetURLDated SupplierKind = "sheet_url_dated"
	KindWebPage       SupplierKind = "web_page"
	KindWebPageLink   SupplierKind = "web_page_link"
	KindEmail         SupplierKind = "email"
)

type SupplierStatus string

const (
	StatusActive SupplierStatus = "active"
	StatusError  SupplierStatus = "error"
)

// MailFilter narrows which inbox messages are considered candidates for one
// email supplier.
type MailFilter struct {
	Provider        string `json:"provider"`
	Mailbox         string `json:"mailbox"`
	From            string `json:"from,omitempty"`
	SubjectContains string `json:"subjectContains,omitempty"`
	UnseenOnly      bool   `json:"unseenOnly"`
	DayWindow       int    `json:"dayWindow,omitempty"`
}

// SourceParams carries mechanism-specific connection parameters. Only the
// fields relevant to the profile kind are populated.
type SourceParams struct {
	URL            string      `json:"url,omitempty"`
	URLDatePattern string      `json:"urlDatePattern,omitempty"`
	DateLayout     string      `json:"dateLayout,omitempty"`
	DayWindow      int         `json:"dayWindow,omitempty"`
	LinkSelector   string      `json:"linkSelector,omitempty"`
	SheetName      string      `json:"sheetName,omitempty"`
	Mail           *MailFilter `json:"mail,omitempty"`
}

type SupplierProfile struct {
	ID            int64
	Name          string
	Kind          SupplierKind
	Params        SourceParams
	Status        SupplierStatus
	LastError     *string
	FabricCount   int
	LastUpdatedAt *string
}

// ParsedRecord is the canonical per-row result of normalization. It is
// ephemeral: produced by an adapter, consumed by the reconciliation engine.
type ParsedRecord struct {
	Collection      string
	ColorNumber     string
	InStock         *bool
	Meterage        *float64
	Price           *float64
	NextArrivalDate *time.Time
	Comment         *string
}

// NormalizeKeyPart folds one identity component: trim plus lowercase with
// inner whitespace collapsed to single spaces.
func NormalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Key is the supplier-relative identity of a record.
func (r ParsedRecord) Key() string {
	return NormalizeKeyPart(r.Collection) + "|" + NormalizeKeyPart(r.ColorNumber)
}

type Fabric struct {
	ID              int64
	SupplierID      int64
	Collection      string
	ColorNumber     string
	InStock         *bool
	Meterage        *float64
	Price           *float64
	PricePerMeter   *float64
	Category        *int
	NextArrivalDate *time.Time
	Comment         *string
	Excluded        bool
	LastUpdatedAt   string
}

func (f Fabric) Key() string {
	return NormalizeKeyPart(f.Collection) + "|" + NormalizeKeyPart(f.ColorNumber)
}

type LockType string

const (
	LockStock LockType = "stock"
	LockPrice LockType = "price"
)

type OverrideLock struct {
	SupplierID       int64
	Type             LockType
	Active           bool
	LastParserUpdate string
}

// Fingerprint is a lightweight shape signature of a source layout, used only
// for drift warnings, never for correctness.
type Fingerprint struct {
	RowCount    int      `json:"rowCount"`
	ColumnCount int      `json:"columnCount"`
	FirstRow    []string `json:"firstRow"`
	SheetNames  []string `json:"sheetNames,omitempty"`
}

// StagedAttachment is the single tracked processing unit chosen by the email
// source selector.
type StagedAttachment struct {
	ID         int64
	SupplierID int64
	MessageID  string
	Subject    string
	ReceivedAt string
	Filename   string
	Hash       string
	Path       string
	Processed  bool
}

type CategoryBucket struct {
	Category  int
	Threshold float64
}

type RunResult struct {
	SupplierID       int64  `json:"supplierId" csv:"supplier_id"`
	SupplierName     string `json:"supplierName" csv:"supplier_name"`
	Success          bool   `json:"success" csv:"success"`
	Created          int    `json:"created" csv:"created"`
	Updated          int    `json:"updated" csv:"updated"`
	SkippedExcluded  int    `json:"skippedExcluded" csv:"skipped_excluded"`
	SkippedUnchanged int    `json:"skippedUnchanged" csv:"skipped_unchanged"`
	Failed           int    `json:"failed" csv:"failed"`
	ErrorMessage     string `json:"errorMessage,omitempty" csv:"error_message"`
}

func StringPtr(v string) *string     { return &v }
func FloatPtr(v float64) *float64    { return &v }
func BoolPtr(v bool) *bool           { return &v }
func IntPtr(v int) *int              { return &v }
func TimePtr(v time.Time) *time.Time { return &v }
