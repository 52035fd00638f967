package parser

import (
	"testing"

	"MedicareCoverageChecker/internal/domain"
)

func TestDecodeRowsArray(t *testing.T) {
	t.Parallel()

	body := []byte(`[{"hcpcs_cd":"99213","hcpcs_desc":"Office visit","work_rvu":"0.97","pe_rvu":1.04,"mp_rvu":"0.07","glob_days":"XXX"}]`)
	rows, err := DecodeRows(body)
	if err != nil {
		t.Fatalf("DecodeRows error: %v", err)
	}
	row, ok := MatchRow(rows, "99213")
	if !ok {
		t.Fatal("expected a matching row")
	}

	fields := ExtractFields(row)
	want := domain.Fields{
		domain.FieldDescription:        "Office visit",
		domain.FieldWorkRVU:            "0.97",
		domain.FieldPracticeExpenseRVU: "1.04",
		domain.FieldMalpracticeRVU:     "0.07",
		domain.FieldGlobalPeriod:       "XXX",
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), fields)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("field %s: expected %q, got %q", k, v, fields[k])
		}
	}
}

func TestMatchRowIsCaseInsensitiveAndExact(t *testing.T) {
	t.Parallel()

	rows := []Row{
		{"HCPCS_CODE": "G0008A", "description": "not this one"},
		{"HCPCS_CODE": "g0008", "description": "Admin influenza virus vac"},
	}

	row, ok := MatchRow(rows, "G0008")
	if !ok {
		t.Fatal("expected a match")
	}
	if row["description"] != "Admin influenza virus vac" {
		t.Fatalf("matched wrong row: %v", row)
	}

	if _, ok := MatchRow(rows, "G000"); ok {
		t.Fatal("prefix must not match")
	}
}

func TestExtractFieldsRejectsGarbage(t *testing.T) {
	t.Parallel()

	fields := ExtractFields(Row{
		"hcpcs_cd":  "99213",
		"work_rvu":  "N/A",
		"pe_rvu":    "$1,234.50",
		"mp_rvu":    "-0.01",
		"conv_fact": "",
		"year":      "twenty",
	})

	if _, ok := fields[domain.FieldWorkRVU]; ok {
		t.Fatalf("non-numeric work rvu should be absent: %v", fields)
	}
	if fields[domain.FieldPracticeExpenseRVU] != "1234.5" {
		t.Fatalf("unexpected pe rvu: %q", fields[domain.FieldPracticeExpenseRVU])
	}
	if _, ok := fields[domain.FieldMalpracticeRVU]; ok {
		t.Fatal("negative rvu should be absent")
	}
	if _, ok := fields[domain.FieldConversionFactor]; ok {
		t.Fatal("empty conversion factor should be absent")
	}
	if _, ok := fields[domain.FieldYear]; ok {
		t.Fatal("non-numeric year should be absent")
	}
}

func TestExtractFieldsPrefersFirstAlias(t *testing.T) {
	t.Parallel()

	fields := ExtractFields(Row{
		"hcpcs_cd":             "99213",
		"practice_expense_rvu": "2.00",
		"pe_rvu":               "1.00",
	})
	if fields[domain.FieldPracticeExpenseRVU] != "1" {
		t.Fatalf("pe_rvu should win over practice_expense_rvu, got %q", fields[domain.FieldPracticeExpenseRVU])
	}
}

func TestDecodeRowsWrappedAndTabular(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"results": `{"results":[{"hcpcs_cd":"99213","work_rvu":"0.97"}]}`,
		"columns": `{"columns":["hcpcs_cd","work_rvu"],"rows":[["99212","0.70"],["99213","0.97"]]}`,
		"schema":  `{"columns":[{"name":"hcpcs_cd"},{"name":"work_rvu"}],"data":[["99213",0.97]]}`,
		"single":  `{"hcpcs_cd":"99213","work_rvu":"0.97"}`,
	}

	for name, body := range cases {
		rows, err := DecodeRows([]byte(body))
		if err != nil {
			t.Fatalf("%s: DecodeRows error: %v", name, err)
		}
		row, ok := MatchRow(rows, "99213")
		if !ok {
			t.Fatalf("%s: expected a match in %v", name, rows)
		}
		if got := ExtractFields(row)[domain.FieldWorkRVU]; got != "0.97" {
			t.Fatalf("%s: unexpected work rvu %q", name, got)
		}
	}
}

func TestDecodeRowsInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := DecodeRows([]byte("<html>maintenance</html>")); err == nil {
		t.Fatal("expected an error for non-JSON body")
	}

	rows, err := DecodeRows([]byte(`{"message":"ok"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func TestResolveDatasets(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"identifier":"hosp","title":"Hospital General Information"},
		{"identifier":"pfs-2024","title":"Medicare Physician Fee Schedule RVU File 2024"},
		{"identifier":"pfs-2024","title":"Medicare Physician Fee Schedule RVU File 2024"},
		{"identifier":"pfs-loc","title":"PFS Locality Key"},
		{"identifier":"pfs-old","title":"PFS 2019"}
	]`)

	datasets, err := ResolveDatasets(body, []string{"rvu", "PFS"}, 2)
	if err != nil {
		t.Fatalf("ResolveDatasets error: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %v", datasets)
	}
	if datasets[0].Identifier != "pfs-2024" || datasets[1].Identifier != "pfs-loc" {
		t.Fatalf("unexpected order: %v", datasets)
	}

	none, err := ResolveDatasets(body, []string{"durable medical equipment"}, 0)
	if err != nil {
		t.Fatalf("ResolveDatasets error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no match, got %v", none)
	}

	wrapped, err := ResolveDatasets([]byte(`{"items":[{"identifier":"x","title":"RVU"}]}`), []string{"RVU"}, 0)
	if err != nil || len(wrapped) != 1 {
		t.Fatalf("wrapped catalog: %v %v", wrapped, err)
	}

	if _, err := ResolveDatasets([]byte(`not json`), []string{"RVU"}, 0); err == nil {
		t.Fatal("expected decode error")
	}
}
