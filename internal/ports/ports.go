package ports

import (
	"context"
	"net/http"
	"net/url"

	"MedicareCoverageChecker/internal/domain"
)

// Request describes one outbound call. At most one of Form and JSON is set.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Form   url.Values
	JSON   any
	Header http.Header
}

// Response is the raw outcome of a call that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher issues timeout-bounded HTTP calls. It returns *domain.NetworkError on
// transport failures and never errors on 4xx/5xx.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// ReimbursementSource produces partial field sets for a code from one upstream service.
type ReimbursementSource interface {
	Name() string
	Endpoint() string
	Lookup(ctx context.Context, q domain.CodeQuery) domain.RawSourceResult
}

// Lookuper resolves a code into a lookup outcome.
type Lookuper interface {
	Lookup(ctx context.Context, code, locality string) (domain.LookupOutcome, error)
}
