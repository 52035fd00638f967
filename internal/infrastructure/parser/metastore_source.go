package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/ports"
)

// datasetFilterColumns are tried in order against each resolved dataset.
var datasetFilterColumns = []string{"hcpcs_cd", "hcpcs_code", "code"}

// MetastoreSource resolves a fee schedule dataset from the catalog, then queries its rows.
type MetastoreSource struct {
	fetcher     ports.Fetcher
	catalogURL  string
	datasetURL  func(id string) string
	titleTerms  []string
	maxDatasets int
	logger      *slog.Logger
}

var _ ports.ReimbursementSource = (*MetastoreSource)(nil)

// MetastoreEndpoints locates the dataset catalog and the row endpoint of each dataset.
type MetastoreEndpoints struct {
	CatalogURL  string
	DatasetURL  func(id string) string
	TitleTerms  []string
	MaxDatasets int
}

// NewMetastoreSource wires catalog and dataset endpoints.
func NewMetastoreSource(fetcher ports.Fetcher, endpoints MetastoreEndpoints, log *slog.Logger) *MetastoreSource {
	return &MetastoreSource{
		fetcher:     fetcher,
		catalogURL:  endpoints.CatalogURL,
		datasetURL:  endpoints.DatasetURL,
		titleTerms:  endpoints.TitleTerms,
		maxDatasets: endpoints.MaxDatasets,
		logger:      log,
	}
}

// Name identifies the source inside the registry.
func (m *MetastoreSource) Name() string {
	return domain.SourceNameMetastore
}

// Endpoint is the catalog URL.
func (m *MetastoreSource) Endpoint() string {
	return m.catalogURL
}

// Lookup resolves candidate datasets and returns the first matching row's fields.
func (m *MetastoreSource) Lookup(ctx context.Context, q domain.CodeQuery) domain.RawSourceResult {
	resp, err := m.fetcher.Fetch(ctx, ports.Request{Method: http.MethodGet, URL: m.catalogURL})
	if err != nil {
		return fetchFailure(m.Name(), m.catalogURL, err)
	}
	if !resp.OK() {
		return fromStatus(m.Name(), m.catalogURL, resp)
	}

	datasets, err := ResolveDatasets(resp.Body, m.titleTerms, m.maxDatasets)
	if err != nil {
		return parseFailure(m.Name(), m.catalogURL, err)
	}
	if len(datasets) == 0 {
		return notFound(m.Name(), m.catalogURL, "no fee schedule dataset in catalog")
	}
	m.debug("resolved datasets", "count", len(datasets), "first", datasets[0].Identifier)

	var lastErr error
	for _, ds := range datasets {
		endpoint := m.datasetURL(url.PathEscape(ds.Identifier))
		for _, column := range datasetFilterColumns {
			fields, hit, err := m.queryDataset(ctx, endpoint, column, q.Code)
			if err != nil {
				if ctx.Err() != nil {
					return fetchFailure(m.Name(), endpoint, err)
				}
				lastErr = err
				continue
			}
			if hit {
				return found(m.Name(), endpoint, fields, fmt.Sprintf("dataset %s (%s)", ds.Identifier, ds.Title))
			}
		}
	}

	if lastErr != nil {
		m.debug("dataset queries failed", "error", lastErr)
		return notFound(m.Name(), m.catalogURL, fmt.Sprintf("%s not found in %d resolved datasets; last error: %v", q.Code, len(datasets), lastErr))
	}
	return notFound(m.Name(), m.catalogURL, fmt.Sprintf("%s not present in %d resolved datasets", q.Code, len(datasets)))
}

// queryDataset returns hit=false when the dataset answered without a usable row.
func (m *MetastoreSource) queryDataset(ctx context.Context, endpoint, column, code string) (domain.Fields, bool, error) {
	resp, err := m.fetcher.Fetch(ctx, ports.Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Query: url.Values{
			"filter[" + column + "]": {code},
			"size":                   {"10"},
		},
	})
	if err != nil {
		return nil, false, err
	}
	if !resp.OK() {
		m.debug("dataset query rejected", "endpoint", endpoint, "column", column, "status", resp.StatusCode)
		return nil, false, nil
	}

	rows, err := DecodeRows(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("dataset %s: %w", endpoint, err)
	}
	row, ok := MatchRow(rows, code)
	if !ok {
		return nil, false, nil
	}
	fields := ExtractFields(row)
	return fields, len(fields) > 0, nil
}

func (m *MetastoreSource) debug(msg string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
