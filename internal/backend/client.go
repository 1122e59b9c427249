// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
)

// maxErrorBodySize limits how much of an error response is read into the error.
const maxErrorBodySize = 4096

// ErrUnauthorized is returned when the backend rejects the credential.
var ErrUnauthorized = errors.New("backend: unauthorized")

// Credentials supplies and invalidates the bearer credential.
type Credentials interface {
	Token() string
	Invalidate() error
}

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ErrorType labels the error for metrics.
func (e *StatusError) ErrorType() string {
	return fmt.Sprintf("status_%dxx", e.StatusCode/100)
}

// ClientError reports whether the backend rejected the request itself (4xx).
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client provides access to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	creds      Credentials
	loc        *time.Location
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// NewClient creates a backend client from configuration. creds may be nil, in
// which case requests are sent without a credential.
func NewClient(cfg *config.BackendConfig, creds Credentials) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		creds:      creds,
		loc:        cfg.Location(),
	}
}

// doJSON sends a request with an optional JSON body and decodes a JSON response
// into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() { metrics.RecordBackendRequest(method, routeLabel(path), time.Since(start), err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		if tok := c.creds.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		if c.creds != nil {
			if err := c.creds.Invalidate(); err != nil {
				logging.Warn().Err(err).Msg("Failed to clear rejected credential")
			}
		}
		logging.Warn().Str("method", method).Str("path", path).Msg("Backend rejected credential")
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(readBodyForError(resp.Body)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// routeLabel replaces entity ids in path with {id} to keep metric labels bounded.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "trackers", "shipments", "assets":
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// readBodyForError reads a bounded prefix of an error response body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// list is a response that is either a bare array or an envelope around one.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var env struct {
		Data  []T `json:"data"`
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Data != nil {
		*l = env.Data
	} else {
		*l = env.Items
	}
	return nil
}
