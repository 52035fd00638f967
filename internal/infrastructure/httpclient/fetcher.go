package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/ports"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 8 << 20
)

// Fetcher is the shared outbound HTTP adapter for every CMS source.
type Fetcher struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	maxBodyBytes int64
}

var _ ports.Fetcher = (*Fetcher)(nil)

// Options tune a Fetcher; zero values fall back to defaults.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// New wires an HTTP client; a nil client gets a fresh one.
func New(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		client:       client,
		timeout:      opts.Timeout,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Fetch performs a single request bounded by the fetcher timeout.
func (f *Fetcher) Fetch(ctx context.Context, r ports.Request) (ports.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.buildRequest(ctx, r)
	if err != nil {
		return ports.Response{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ports.Response{}, &domain.NetworkError{Endpoint: endpointOf(r.URL), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return ports.Response{}, &domain.NetworkError{Endpoint: endpointOf(r.URL), Err: fmt.Errorf("read body: %w", err)}
	}

	return ports.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        resp.Request.URL.String(),
	}, nil
}

func (f *Fetcher) buildRequest(ctx context.Context, r ports.Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", r.URL, err)
	}
	if len(r.Query) > 0 {
		query := target.Query()
		for key, values := range r.Query {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		target.RawQuery = query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.JSON != nil:
		payload, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, values := range r.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return req, nil
}

// endpointOf strips the query so error messages do not echo request parameters.
func endpointOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
