package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/ports"
)

// searchParams are the names the code is submitted under in addition to the form's own text inputs.
var searchParams = []string{"hcpcs", "code", "procedure_code", "search"}

// PFSSearchSource drives the physician fee schedule search page and scrapes the result.
type PFSSearchSource struct {
	fetcher   ports.Fetcher
	searchURL string
	logger    *slog.Logger
}

var _ ports.ReimbursementSource = (*PFSSearchSource)(nil)

// NewPFSSearchSource wires the search page URL.
func NewPFSSearchSource(fetcher ports.Fetcher, searchURL string, log *slog.Logger) *PFSSearchSource {
	return &PFSSearchSource{fetcher: fetcher, searchURL: searchURL, logger: log}
}

// Name identifies the source inside the registry.
func (p *PFSSearchSource) Name() string {
	return domain.SourceNamePFSSearch
}

// Endpoint is the search page URL.
func (p *PFSSearchSource) Endpoint() string {
	return p.searchURL
}

// Lookup loads the search page, submits its form for the code and scrapes the answer.
func (p *PFSSearchSource) Lookup(ctx context.Context, q domain.CodeQuery) domain.RawSourceResult {
	page, result, ok := p.fetchDocument(ctx, ports.Request{Method: http.MethodGet, URL: p.searchURL})
	if !ok {
		return result
	}

	pageURL := p.searchURL
	if page.Url != nil {
		pageURL = page.Url.String()
	}
	form, ok := FindSearchForm(page, pageURL)
	if !ok {
		return notFound(p.Name(), p.searchURL, "search form not found on page")
	}
	p.debug("submitting search form", "action", form.Action, "method", form.Method)

	values := url.Values{}
	for key, vals := range form.Values {
		values[key] = append([]string(nil), vals...)
	}
	for _, name := range form.Inputs {
		values.Set(name, q.Code)
	}
	for _, name := range searchParams {
		values.Set(name, q.Code)
	}

	req := ports.Request{Method: form.Method, URL: form.Action}
	if form.Method == http.MethodGet {
		req.Query = values
	} else {
		req.Form = values
	}

	doc, result, ok := p.fetchDocument(ctx, req)
	if !ok {
		return result
	}

	if !MentionsCode(doc, q.Code) {
		return notFound(p.Name(), form.Action, fmt.Sprintf("results page does not mention %s", q.Code))
	}

	fields := ScrapeFields(doc, q.Code)
	if len(fields) == 0 {
		return notFound(p.Name(), form.Action, "results page carried no recognizable figures")
	}
	return found(p.Name(), form.Action, fields, "")
}

// fetchDocument returns ok=false together with the classified result when the page is unusable.
func (p *PFSSearchSource) fetchDocument(ctx context.Context, req ports.Request) (*goquery.Document, domain.RawSourceResult, bool) {
	resp, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fetchFailure(p.Name(), req.URL, err), false
	}
	if !resp.OK() {
		return nil, fromStatus(p.Name(), req.URL, resp), false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, parseFailure(p.Name(), req.URL, fmt.Errorf("parse document: %w", err)), false
	}

	responseURL := resp.URL
	if responseURL == "" {
		responseURL = req.URL
	}
	if u, err := url.Parse(responseURL); err == nil {
		doc.Url = u
	}
	return doc, domain.RawSourceResult{}, true
}

func (p *PFSSearchSource) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
