package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/ports"
)

var identifierExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// DatastoreSQLSource queries the SQL-over-dataset endpoint for a single fee schedule row.
type DatastoreSQLSource struct {
	fetcher    ports.Fetcher
	endpoint   string
	table      string
	codeColumn string
	logger     *slog.Logger
}

var _ ports.ReimbursementSource = (*DatastoreSQLSource)(nil)

// NewDatastoreSQLSource wires the SQL endpoint with the table and code column to query.
func NewDatastoreSQLSource(fetcher ports.Fetcher, endpoint, table, codeColumn string, log *slog.Logger) *DatastoreSQLSource {
	return &DatastoreSQLSource{
		fetcher:    fetcher,
		endpoint:   endpoint,
		table:      table,
		codeColumn: codeColumn,
		logger:     log,
	}
}

// Name identifies the source inside the registry.
func (s *DatastoreSQLSource) Name() string {
	return domain.SourceNameDatastoreSQL
}

// Endpoint is the SQL URL.
func (s *DatastoreSQLSource) Endpoint() string {
	return s.endpoint
}

// Lookup posts the query and extracts the matching row.
func (s *DatastoreSQLSource) Lookup(ctx context.Context, q domain.CodeQuery) domain.RawSourceResult {
	query, err := BuildSQL(s.table, s.codeColumn, q.Code)
	if err != nil {
		return parseFailure(s.Name(), s.endpoint, err)
	}
	s.debug("datastore sql query", "query", query)

	resp, err := s.fetcher.Fetch(ctx, ports.Request{
		Method: http.MethodPost,
		URL:    s.endpoint,
		JSON:   map[string]string{"query": query},
	})
	if err != nil {
		return fetchFailure(s.Name(), s.endpoint, err)
	}
	if !resp.OK() {
		return fromStatus(s.Name(), s.endpoint, resp)
	}

	rows, err := DecodeRows(resp.Body)
	if err != nil {
		return parseFailure(s.Name(), s.endpoint, err)
	}

	row, ok := MatchRow(rows, q.Code)
	if !ok {
		return notFound(s.Name(), s.endpoint, fmt.Sprintf("no row for %s among %d returned", q.Code, len(rows)))
	}

	fields := ExtractFields(row)
	if len(fields) == 0 {
		return notFound(s.Name(), s.endpoint, "matching row carried no known columns")
	}
	return found(s.Name(), s.endpoint, fields, "")
}

// BuildSQL renders the single-row lookup with the code inlined as a quoted literal,
// since the endpoint takes raw SQL text rather than bound parameters.
func BuildSQL(table, codeColumn, code string) (string, error) {
	if !identifierExpr.MatchString(table) {
		return "", fmt.Errorf("invalid sql table name %q", table)
	}
	if !identifierExpr.MatchString(codeColumn) {
		return "", fmt.Errorf("invalid sql code column %q", codeColumn)
	}

	query, args, err := sq.Select("*").
		From(table).
		Where(sq.Eq{codeColumn: code}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build sql: %w", err)
	}
	return inlineArgs(query, args)
}

func inlineArgs(query string, args []any) (string, error) {
	var b strings.Builder
	next := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		if next >= len(args) {
			return "", fmt.Errorf("build sql: more placeholders than arguments")
		}
		b.WriteString(quoteLiteral(fmt.Sprint(args[next])))
		next++
	}
	if next != len(args) {
		return "", fmt.Errorf("build sql: %d unused arguments", len(args)-next)
	}
	return b.String(), nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (s *DatastoreSQLSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
