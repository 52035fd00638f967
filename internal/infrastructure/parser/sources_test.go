package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/infrastructure/httpclient"
)

func TestBuildSQL(t *testing.T) {
	t.Parallel()

	query, err := BuildSQL("physician_fee_schedule", "hcpcs_cd", "G0008")
	if err != nil {
		t.Fatalf("BuildSQL error: %v", err)
	}
	want := "SELECT * FROM physician_fee_schedule WHERE hcpcs_cd = 'G0008' LIMIT 1"
	if query != want {
		t.Fatalf("unexpected query:\n got %s\nwant %s", query, want)
	}

	if _, err := BuildSQL("fees; DROP TABLE x", "hcpcs_cd", "G0008"); err == nil {
		t.Fatal("expected invalid table name to be rejected")
	}

	inlined, err := inlineArgs("SELECT * FROM t WHERE a = ?", []any{"O'Brien"})
	if err != nil {
		t.Fatalf("inlineArgs error: %v", err)
	}
	if inlined != "SELECT * FROM t WHERE a = 'O''Brien'" {
		t.Fatalf("quote not escaped: %s", inlined)
	}
}

func newTestFetcher(server *httptest.Server) *httpclient.Fetcher {
	return httpclient.New(server.Client(), httpclient.Options{Timeout: 2 * time.Second})
}

func TestDatastoreSQLSourceLookup(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["query"] != "SELECT * FROM physician_fee_schedule WHERE hcpcs_cd = 'G0008' LIMIT 1" {
			t.Errorf("unexpected query: %s", payload["query"])
		}
		_, _ = w.Write([]byte(`[{"HCPCS_CD":"g0008","HCPCS_DESC":"Admin influenza virus vac","WORK_RVU":"0.17","PE_RVU":"0.05","MP_RVU":"0.01","GLOB_DAYS":"XXX","STATUS_IND":"A"}]`))
	}))
	defer server.Close()

	src := NewDatastoreSQLSource(newTestFetcher(server), server.URL+"/api/1/datastore/sql", "physician_fee_schedule", "hcpcs_cd", nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "G0008", Locality: domain.NationalLocality})

	if res.Status != domain.SourceOK {
		t.Fatalf("expected ok, got %s (%s)", res.Status, res.Detail)
	}
	if res.Source != domain.SourceNameDatastoreSQL {
		t.Fatalf("unexpected source name: %s", res.Source)
	}
	if res.Fields[domain.FieldWorkRVU] != "0.17" || res.Fields[domain.FieldStatusIndicator] != "A" {
		t.Fatalf("unexpected fields: %v", res.Fields)
	}
}

func TestDatastoreSQLSourceClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   domain.SourceStatus
		kind   domain.ErrorKind
	}{
		{"empty result", http.StatusOK, `[]`, domain.SourceNotFound, domain.KindNone},
		{"html body", http.StatusOK, `<html>maintenance</html>`, domain.SourceError, domain.KindParse},
		{"server down", http.StatusServiceUnavailable, ``, domain.SourceError, domain.KindUnavailable},
		{"bad request", http.StatusBadRequest, `{"message":"bad"}`, domain.SourceNotFound, domain.KindNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			src := NewDatastoreSQLSource(newTestFetcher(server), server.URL, "physician_fee_schedule", "hcpcs_cd", nil)
			res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99999"})
			if res.Status != tc.want || res.Kind != tc.kind {
				t.Fatalf("expected %s/%s, got %s/%s (%s)", tc.want, tc.kind, res.Status, res.Kind, res.Detail)
			}
		})
	}
}

func TestDatastoreSQLSourceUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	fetcher := newTestFetcher(server)
	server.Close()

	src := NewDatastoreSQLSource(fetcher, endpoint, "physician_fee_schedule", "hcpcs_cd", nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99213"})
	if res.Status != domain.SourceError || res.Kind != domain.KindNetwork {
		t.Fatalf("expected network error, got %s/%s", res.Status, res.Kind)
	}
	if !res.Unreachable() {
		t.Fatal("network failure should count as unreachable")
	}
}

func TestDatastoreSQLSourceServerErrorIsReachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewDatastoreSQLSource(newTestFetcher(server), server.URL, "physician_fee_schedule", "hcpcs_cd", nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99213"})
	if res.Kind != domain.KindUnavailable || res.Detail == "" {
		t.Fatalf("expected unavailable with detail, got %s/%s", res.Status, res.Kind)
	}
	if res.Unreachable() {
		t.Fatal("an HTTP answer, even 503, means the endpoint was reached")
	}
}

func metastoreEndpoints(base string) MetastoreEndpoints {
	return MetastoreEndpoints{
		CatalogURL:  base + "/api/1/metastore/schemas/dataset/items",
		DatasetURL:  func(id string) string { return base + "/data-api/v1/dataset/" + id + "/data" },
		TitleTerms:  []string{"RVU", "PFS"},
		MaxDatasets: 3,
	}
}

func TestMetastoreSourceLookup(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/1/metastore/schemas/dataset/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"identifier":"hosp","title":"Hospital General Information"},
			{"identifier":"pfs-2024","title":"Physician Fee Schedule RVU File 2024"}
		]`))
	})
	mux.HandleFunc("GET /data-api/v1/dataset/pfs-2024/data", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter[hcpcs_cd]") != "99213" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"hcpcs_cd":"99213","hcpcs_desc":"Office visit","work_rvu":"0.97","pe_rvu":"1.04","mp_rvu":"0.07"}]`))
	})
	mux.HandleFunc("GET /data-api/v1/dataset/hosp/data", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unrelated dataset must not be queried")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewMetastoreSource(newTestFetcher(server), metastoreEndpoints(server.URL), nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99213"})

	if res.Status != domain.SourceOK {
		t.Fatalf("expected ok, got %s (%s)", res.Status, res.Detail)
	}
	if res.Fields[domain.FieldDescription] != "Office visit" || res.Fields[domain.FieldPracticeExpenseRVU] != "1.04" {
		t.Fatalf("unexpected fields: %v", res.Fields)
	}
}

func TestMetastoreSourceNoDatasetSkipsQueries(t *testing.T) {
	t.Parallel()

	var datasetHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/1/metastore/schemas/dataset/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"identifier":"hosp","title":"Hospital General Information"}]`))
	})
	mux.HandleFunc("/data-api/", func(w http.ResponseWriter, r *http.Request) {
		datasetHits.Add(1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewMetastoreSource(newTestFetcher(server), metastoreEndpoints(server.URL), nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99213"})

	if res.Status != domain.SourceNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
	if datasetHits.Load() != 0 {
		t.Fatalf("expected no dataset queries, got %d", datasetHits.Load())
	}
}

func TestMetastoreSourceCatalogReachedDatasetsDown(t *testing.T) {
	t.Parallel()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"identifier":"pfs-2024","title":"Physician Fee Schedule RVU File 2024"}]`))
	}))
	defer catalog.Close()

	rows := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rowsURL := rows.URL
	rows.Close()

	endpoints := metastoreEndpoints(catalog.URL)
	endpoints.DatasetURL = func(id string) string { return rowsURL + "/data-api/v1/dataset/" + id + "/data" }

	src := NewMetastoreSource(newTestFetcher(catalog), endpoints, nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99213"})

	if res.Unreachable() {
		t.Fatalf("catalog answered, source must not count as unreachable: %s/%s", res.Status, res.Kind)
	}
	if res.Status != domain.SourceNotFound || res.Detail == "" {
		t.Fatalf("expected not_found with detail, got %s (%s)", res.Status, res.Detail)
	}
}

func TestPFSSearchSourceLookup(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /medicare/physician-fee-schedule/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<html><body>
		  <form id="pfs-search" action="/medicare/physician-fee-schedule/search/results" method="post">
		    <input type="hidden" name="token" value="t1">
		    <input type="text" name="hcpcs_input">
		  </form>
		</body></html>`))
	})
	mux.HandleFunc("POST /medicare/physician-fee-schedule/search/results", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("token") != "t1" || r.PostForm.Get("hcpcs_input") != "G0008" || r.PostForm.Get("hcpcs") != "G0008" {
			t.Errorf("unexpected form: %v", r.PostForm)
			_, _ = w.Write([]byte(`<p>No results</p>`))
			return
		}
		_, _ = w.Write([]byte(`
		<html><body>
		  <h2>HCPCS G0008</h2>
		  <dl>
		    <dt>Description</dt><dd>Admin influenza virus vac</dd>
		    <dt>Work RVU</dt><dd>0.17</dd>
		    <dt>PE RVU</dt><dd>0.05</dd>
		    <dt>MP RVU</dt><dd>0.01</dd>
		  </dl>
		</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewPFSSearchSource(newTestFetcher(server), server.URL+"/medicare/physician-fee-schedule/search", nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "G0008"})

	if res.Status != domain.SourceOK {
		t.Fatalf("expected ok, got %s (%s)", res.Status, res.Detail)
	}
	want := domain.Fields{
		domain.FieldDescription:        "Admin influenza virus vac",
		domain.FieldWorkRVU:            "0.17",
		domain.FieldPracticeExpenseRVU: "0.05",
		domain.FieldMalpracticeRVU:     "0.01",
	}
	for k, v := range want {
		if res.Fields[k] != v {
			t.Fatalf("field %s: expected %q, got %q", k, v, res.Fields[k])
		}
	}
}

func TestPFSSearchSourceWithoutForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Page moved</p></body></html>`))
	}))
	defer server.Close()

	src := NewPFSSearchSource(newTestFetcher(server), server.URL, nil)
	res := src.Lookup(context.Background(), domain.CodeQuery{Code: "99213"})
	if res.Status != domain.SourceNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
}
