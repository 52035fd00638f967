package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"MedicareCoverageChecker/internal/logging"
	"MedicareCoverageChecker/internal/ports"
)

// Overall connection statuses.
const (
	ProbeOK       = "ok"
	ProbeDegraded = "degraded"
	ProbeDown     = "down"
)

// ProbeTarget is one endpoint root to check.
type ProbeTarget struct {
	Name string
	URL  string
}

// EndpointStatus is the reachability of one target.
type EndpointStatus struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	Method     string `json:"method"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// ConnectionReport is the structured answer of test_cms_api_connection.
type ConnectionReport struct {
	Status    string           `json:"status"`
	Message   string           `json:"message"`
	Endpoints []EndpointStatus `json:"endpoints"`
}

// Prober checks that CMS endpoints answer at all. Response bodies are ignored.
type Prober struct {
	fetcher ports.Fetcher
	targets []ProbeTarget
	logger  *slog.Logger
}

// NewProber wires the fetcher with the endpoints to check.
func NewProber(fetcher ports.Fetcher, targets []ProbeTarget, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Prober{
		fetcher: fetcher,
		targets: append([]ProbeTarget(nil), targets...),
		logger:  logger,
	}
}

// Probe checks every target concurrently and reports them in configured order.
func (p *Prober) Probe(ctx context.Context) ConnectionReport {
	results := make([]EndpointStatus, len(p.targets))

	type indexedResult struct {
		idx    int
		status EndpointStatus
	}

	ch := make(chan indexedResult, len(p.targets))
	for i, target := range p.targets {
		go func(idx int, t ProbeTarget) {
			ch <- indexedResult{idx, p.probeOne(ctx, t)}
		}(i, target)
	}
	for range p.targets {
		r := <-ch
		results[r.idx] = r.status
	}

	reachable := 0
	for _, r := range results {
		if r.Reachable {
			reachable++
		}
	}

	report := ConnectionReport{Endpoints: results}
	switch {
	case len(results) > 0 && reachable == len(results):
		report.Status = ProbeOK
		report.Message = "All CMS endpoints are reachable."
	case reachable == 0:
		report.Status = ProbeDown
		report.Message = "No CMS endpoint could be reached."
	default:
		report.Status = ProbeDegraded
		report.Message = fmt.Sprintf("%d of %d CMS endpoints are reachable.", reachable, len(results))
	}
	p.logger.Info("connection probe finished", "status", report.Status, "reachable", reachable, "total", len(results))
	return report
}

// probeOne sends HEAD and retries with GET when the server does not support HEAD.
// Any status below 500 counts as reachable.
func (p *Prober) probeOne(ctx context.Context, target ProbeTarget) EndpointStatus {
	status := EndpointStatus{Name: target.Name, URL: target.URL, Method: http.MethodHead}
	started := time.Now()

	resp, err := p.fetcher.Fetch(ctx, ports.Request{Method: http.MethodHead, URL: target.URL})
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		status.Method = http.MethodGet
		resp, err = p.fetcher.Fetch(ctx, ports.Request{Method: http.MethodGet, URL: target.URL})
	}
	status.LatencyMS = time.Since(started).Milliseconds()

	if err != nil {
		status.Error = err.Error()
		p.logger.Debug("probe failed", "endpoint", target.Name, "error", err)
		return status
	}
	status.StatusCode = resp.StatusCode
	status.Reachable = resp.StatusCode < http.StatusInternalServerError
	if !status.Reachable {
		status.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return status
}
