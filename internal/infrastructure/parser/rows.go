package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"MedicareCoverageChecker/internal/domain"
)

// Row is one decoded record keyed by its original column names.
type Row map[string]any

type columnAlias struct {
	column string
	field  domain.Field
}

// columnAliases is ordered: the first alias present in a row wins for its field.
var columnAliases = []columnAlias{
	{"hcpcs_desc", domain.FieldDescription},
	{"hcpcs_description", domain.FieldDescription},
	{"description", domain.FieldDescription},
	{"short_description", domain.FieldDescription},
	{"long_description", domain.FieldDescription},
	{"sdesc", domain.FieldDescription},
	{"descriptor", domain.FieldDescription},

	{"work_rvu", domain.FieldWorkRVU},
	{"rvu_work", domain.FieldWorkRVU},
	{"wrvu", domain.FieldWorkRVU},

	{"pe_rvu", domain.FieldPracticeExpenseRVU},
	{"practice_expense_rvu", domain.FieldPracticeExpenseRVU},

	{"non_fac_pe_rvu", domain.FieldNonFacilityPERVU},
	{"nonfac_pe_rvu", domain.FieldNonFacilityPERVU},
	{"non_facility_pe_rvu", domain.FieldNonFacilityPERVU},
	{"full_nfac_pe", domain.FieldNonFacilityPERVU},

	{"fac_pe_rvu", domain.FieldFacilityPERVU},
	{"facility_pe_rvu", domain.FieldFacilityPERVU},
	{"full_fac_pe", domain.FieldFacilityPERVU},

	{"mp_rvu", domain.FieldMalpracticeRVU},
	{"malpractice_rvu", domain.FieldMalpracticeRVU},
	{"rvu_mp", domain.FieldMalpracticeRVU},

	{"non_fac_total", domain.FieldNonFacilityTotalRVU},
	{"non_facility_total", domain.FieldNonFacilityTotalRVU},
	{"full_nfac_total", domain.FieldNonFacilityTotalRVU},

	{"fac_total", domain.FieldFacilityTotalRVU},
	{"facility_total", domain.FieldFacilityTotalRVU},
	{"full_fac_total", domain.FieldFacilityTotalRVU},

	{"conv_fact", domain.FieldConversionFactor},
	{"conversion_factor", domain.FieldConversionFactor},
	{"conv_factor", domain.FieldConversionFactor},

	{"gaf", domain.FieldGeographicAdjustment},
	{"geographic_adjustment", domain.FieldGeographicAdjustment},
	{"geographic_adjustment_factor", domain.FieldGeographicAdjustment},

	{"status_ind", domain.FieldStatusIndicator},
	{"status_indicator", domain.FieldStatusIndicator},
	{"status_code", domain.FieldStatusIndicator},
	{"proc_stat", domain.FieldStatusIndicator},

	{"glob_days", domain.FieldGlobalPeriod},
	{"global_period", domain.FieldGlobalPeriod},
	{"global_days", domain.FieldGlobalPeriod},

	{"year", domain.FieldYear},
	{"rvu_year", domain.FieldYear},
	{"pfs_year", domain.FieldYear},
}

var codeColumns = map[string]bool{
	"hcpcs_cd":       true,
	"hcpcs_code":     true,
	"hcpcs":          true,
	"cpt_code":       true,
	"cpt_hcpcs":      true,
	"procedure_code": true,
	"code":           true,
}

var (
	columnSeparators = regexp.MustCompile(`[\s\-./]+`)
	yearExpr         = regexp.MustCompile(`^\d{4}$`)
	wrapperKeys      = []string{"results", "data", "rows", "items", "records"}
)

// DecodeRows parses a JSON body shaped as an array of objects, an object wrapping
// such an array, or a {columns, rows} table. An unrecognized shape yields no rows.
func DecodeRows(body []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rowsFromValue(value), nil
}

func rowsFromValue(value any) []Row {
	switch v := value.(type) {
	case []any:
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				rows = append(rows, Row(obj))
			}
		}
		return rows
	case map[string]any:
		if columns, ok := v["columns"]; ok {
			if rows := zipTable(columns, v); len(rows) > 0 {
				return rows
			}
		}
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				if rows := rowsFromValue(inner); len(rows) > 0 {
					return rows
				}
			}
		}
		if hasCodeColumn(v) {
			return []Row{Row(v)}
		}
	}
	return nil
}

func zipTable(columns any, table map[string]any) []Row {
	rawColumns, ok := columns.([]any)
	if !ok {
		return nil
	}
	names := make([]string, len(rawColumns))
	for i, col := range rawColumns {
		switch c := col.(type) {
		case string:
			names[i] = c
		case map[string]any:
			names[i], _ = c["name"].(string)
		}
	}

	for _, key := range wrapperKeys {
		data, ok := table[key].([]any)
		if !ok {
			continue
		}
		rows := make([]Row, 0, len(data))
		for _, item := range data {
			cells, ok := item.([]any)
			if !ok {
				continue
			}
			row := Row{}
			for i, cell := range cells {
				if i < len(names) && names[i] != "" {
					row[names[i]] = cell
				}
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func hasCodeColumn(obj map[string]any) bool {
	for key := range obj {
		if codeColumns[normalizeColumn(key)] {
			return true
		}
	}
	return false
}

// MatchRow returns the first row whose code column equals code, ignoring case.
func MatchRow(rows []Row, code string) (Row, bool) {
	for _, row := range rows {
		for key, value := range row {
			if !codeColumns[normalizeColumn(key)] {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(textOf(value)), code) {
				return row, true
			}
		}
	}
	return nil, false
}

// ExtractFields maps known columns of a row to fields, dropping values that do not coerce.
func ExtractFields(row Row) domain.Fields {
	normalized := make(map[string]any, len(row))
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		nk := normalizeColumn(key)
		if _, dup := normalized[nk]; !dup {
			normalized[nk] = row[key]
		}
	}

	fields := domain.Fields{}
	for _, alias := range columnAliases {
		if _, done := fields[alias.field]; done {
			continue
		}
		raw, ok := normalized[alias.column]
		if !ok {
			continue
		}
		if value, ok := CoerceField(alias.field, textOf(raw)); ok {
			fields[alias.field] = value
		}
	}
	return fields
}

// CoerceField validates a raw value for a field. Numeric fields accept "$1,234.50"
// style text and are returned in canonical decimal form; anything else numeric is rejected.
func CoerceField(field domain.Field, raw string) (string, bool) {
	if domain.NumericFields[field] {
		return coerceNumber(raw)
	}

	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return "", false
	}
	if field == domain.FieldYear && !yearExpr.MatchString(text) {
		return "", false
	}
	return text, true
}

func coerceNumber(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return "", false
	}
	return d.String(), true
}

func textOf(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return columnSeparators.ReplaceAllString(name, "_")
}
