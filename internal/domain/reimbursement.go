package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NationalLocality is the locality used when the caller does not pick one.
const NationalLocality = "National"

var codeExpr = regexp.MustCompile(`^[A-Z0-9]{5}$`)

// CodeQuery is the immutable input of a lookup.
type CodeQuery struct {
	Code     string
	Locality string
}

// NewCodeQuery normalizes and validates a HCPCS/CPT code.
func NewCodeQuery(code, locality string) (CodeQuery, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return CodeQuery{}, &InputError{Field: "code", Reason: "a HCPCS or CPT code is required"}
	}
	if !codeExpr.MatchString(normalized) {
		return CodeQuery{}, &InputError{
			Field:  "code",
			Reason: fmt.Sprintf("%q is not a 5-character alphanumeric HCPCS/CPT code", normalized),
		}
	}

	locality = strings.TrimSpace(locality)
	if locality == "" {
		locality = NationalLocality
	}

	return CodeQuery{Code: normalized, Locality: locality}, nil
}

// IsNational reports whether national rates apply without any locality lookup.
func (q CodeQuery) IsNational() bool {
	return strings.EqualFold(q.Locality, NationalLocality)
}

// Field names a value a data source may supply.
type Field string

const (
	FieldDescription          Field = "description"
	FieldWorkRVU              Field = "work_rvu"
	FieldPracticeExpenseRVU   Field = "practice_expense_rvu"
	FieldFacilityPERVU        Field = "facility_pe_rvu"
	FieldNonFacilityPERVU     Field = "non_facility_pe_rvu"
	FieldMalpracticeRVU       Field = "malpractice_rvu"
	FieldFacilityTotalRVU     Field = "facility_total_rvu"
	FieldNonFacilityTotalRVU  Field = "non_facility_total_rvu"
	FieldConversionFactor     Field = "conversion_factor"
	FieldGeographicAdjustment Field = "geographic_adjustment"
	FieldStatusIndicator      Field = "status_indicator"
	FieldGlobalPeriod         Field = "global_period"
	FieldYear                 Field = "year"
)

// NumericFields lists fields whose values must parse as decimals.
var NumericFields = map[Field]bool{
	FieldWorkRVU:              true,
	FieldPracticeExpenseRVU:   true,
	FieldFacilityPERVU:        true,
	FieldNonFacilityPERVU:     true,
	FieldMalpracticeRVU:       true,
	FieldFacilityTotalRVU:     true,
	FieldNonFacilityTotalRVU:  true,
	FieldConversionFactor:     true,
	FieldGeographicAdjustment: true,
}

// Fields maps a field to its value as received. Numeric fields hold validated decimal text.
type Fields map[Field]string

// Decimal returns a numeric field, ok=false when absent.
func (f Fields) Decimal(field Field) (decimal.Decimal, bool) {
	raw, ok := f[field]
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// HasPracticeExpense is true when any practice-expense RVU variant is present.
func (f Fields) HasPracticeExpense() bool {
	_, generic := f[FieldPracticeExpenseRVU]
	_, facility := f[FieldFacilityPERVU]
	_, nonFacility := f[FieldNonFacilityPERVU]
	return generic || facility || nonFacility
}

// Complete reports whether description and all three RVU components are present.
func (f Fields) Complete() bool {
	_, desc := f[FieldDescription]
	_, work := f[FieldWorkRVU]
	_, mp := f[FieldMalpracticeRVU]
	return desc && work && mp && f.HasPracticeExpense()
}

// Names of the data sources, in default priority order.
const (
	SourceNameDatastoreSQL = "cms-datastore-sql"
	SourceNameMetastore    = "cms-metastore-dataset"
	SourceNamePFSSearch    = "cms-pfs-search"
)

// SourceStatus classifies a single source attempt.
type SourceStatus string

const (
	SourceOK       SourceStatus = "ok"
	SourceNotFound SourceStatus = "not_found"
	SourceError    SourceStatus = "error"
)

// ErrorKind refines SourceError results.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindNetwork     ErrorKind = "network"
	KindUnavailable ErrorKind = "unavailable"
	KindParse       ErrorKind = "parse"
)

// RawSourceResult is what one source produced for one query.
type RawSourceResult struct {
	Source   string
	Endpoint string
	Status   SourceStatus
	Kind     ErrorKind
	Fields   Fields
	Detail   string
	Err      error
}

// Unreachable is true when the source could not be talked to at all.
// An HTTP answer, including 5xx, means it was reached.
func (r RawSourceResult) Unreachable() bool {
	return r.Status == SourceError && r.Kind == KindNetwork
}

// ReimbursementRecord is the merged, computed answer for a code.
// Optional figures use decimal.NullDecimal; Valid=false means absent.
type ReimbursementRecord struct {
	Code                 string
	Description          string
	WorkRVU              decimal.NullDecimal
	PracticeExpenseRVU   decimal.NullDecimal
	FacilityPERVU        decimal.NullDecimal
	NonFacilityPERVU     decimal.NullDecimal
	MalpracticeRVU       decimal.NullDecimal
	TotalRVU             decimal.NullDecimal
	FacilityTotalRVU     decimal.NullDecimal
	NonFacilityTotalRVU  decimal.NullDecimal
	ConversionFactor     decimal.Decimal
	ConversionOrigin     string
	GeographicAdjustment decimal.Decimal
	NationalAdjustment   bool
	NationalPayment      decimal.NullDecimal
	FacilityPayment      decimal.NullDecimal
	NonFacilityPayment   decimal.NullDecimal
	PatientCoinsurance   decimal.NullDecimal
	CoinsuranceRate      decimal.Decimal
	Locality             string
	Year                 string
	StatusIndicator      string
	GlobalPeriod         string
	DataSources          []string
	FieldSources         map[Field]string
	Missing              []string
}

// SourceFailure describes why a source could not be used.
type SourceFailure struct {
	Source   string
	Endpoint string
	Kind     ErrorKind
	Error    string
}

// LookupOutcome is one of Success, NotFound or SourcesUnavailable.
type LookupOutcome interface {
	outcome()
}

// Success carries a merged record.
type Success struct {
	Record ReimbursementRecord
}

// NotFound means every source answered but none knew the code.
type NotFound struct {
	Code      string
	Attempted []string
	Failures  []SourceFailure
}

// SourcesUnavailable means no source could be reached.
type SourcesUnavailable struct {
	Code     string
	Failures []SourceFailure
}

func (Success) outcome()            {}
func (NotFound) outcome()           {}
func (SourcesUnavailable) outcome() {}
