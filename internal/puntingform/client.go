package puntingform

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sstent/gearcron/internal/logging"
)

// DefaultBaseURL is the Punting Form v2 API root.
const DefaultBaseURL = "https://api.puntingform.com.au/v2"

// Endpoint paths relative to the base URL.
const (
	PathFormCSV      = "/form/form/csv"
	PathMeetingCSV   = "/form/meeting/csv"
	PathScratchings  = "/Updates/Scratchings"
	PathConditions   = "/Updates/Conditions"
	previewMaxLength = 220
	rawPreviewLength = 400
)

// ErrMissingAPIKey is returned when no API key was configured.
var ErrMissingAPIKey = errors.New("PF_API_KEY not set")

// StatusError reports that every authentication attempt against an endpoint failed.
type StatusError struct {
	URL     string
	LastErr string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("PF JSON failed for %s: %s", e.URL, e.LastErr)
}

// Row is one CSV record keyed by its header column.
type Row map[string]string

// Client talks to the Punting Form API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout. The client is copied first, so a
// client passed to WithHTTPClient is left untouched.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			clone := *c.httpClient
			clone.Timeout = timeout
			c.httpClient = &clone
		}
	}
}

// WithLogger attaches a logger for per-attempt diagnostics. A logger carried
// by the request context takes precedence.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Punting Form client. An empty key is accepted so the service
// can start; calls then fail with ErrMissingAPIKey.
func New(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, c.logger, "pf")
}

type attempt struct {
	header bool
}

// attempts tries the X-Api-Key header first, then the apiKey query parameter.
var attempts = []attempt{{header: true}, {header: false}}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, path, accept string, params url.Values, a attempt) (*response, error) {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("parse pf url: %w", err)
	}
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	if !a.header {
		query.Set("apiKey", c.apiKey)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if a.header {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response (latency=%v): %w", latency, err)
	}
	c.log(ctx).Debug("pf request",
		slog.String("path", path),
		slog.Bool("header_auth", a.header),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", latency),
	)
	return &response{status: resp.StatusCode, body: body}, nil
}

func preview(body []byte, limit int) string {
	s := string(body)
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

// GetJSON fetches a JSON endpoint and unwraps the {"payLoad": ...} envelope
// when present.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (any, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	var lastErr string
	for _, a := range attempts {
		resp, err := c.do(ctx, path, "application/json", params, a)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		switch {
		case resp.status == http.StatusOK:
			var payload any
			if err := json.Unmarshal(resp.body, &payload); err != nil {
				lastErr = fmt.Sprintf("decode json: %v", err)
				continue
			}
			if envelope, ok := payload.(map[string]any); ok {
				if inner, ok := envelope["payLoad"]; ok {
					return inner, nil
				}
			}
			return payload, nil
		default:
			lastErr = fmt.Sprintf("%d %s", resp.status, preview(resp.body, previewMaxLength))
		}
	}
	return nil, &StatusError{URL: c.baseURL + path, LastErr: lastErr}
}

// GetJSONList is GetJSON for endpoints returning an array of objects. Non-object
// elements are skipped; a non-array payload yields no items.
func (c *Client) GetJSONList(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	payload, err := c.GetJSON(ctx, path, params)
	if err != nil {
		return nil, err
	}
	list, ok := payload.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

// GetCSV fetches a CSV endpoint. When every attempt fails the result is empty
// rather than an error, because missing races and meetings look the same.
func (c *Client) GetCSV(ctx context.Context, path string, params url.Values) ([]Row, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	for _, a := range attempts {
		resp, err := c.do(ctx, path, "text/csv", params, a)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log(ctx).Debug("pf csv attempt failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if resp.status != http.StatusOK {
			c.log(ctx).Debug("pf csv attempt rejected",
				slog.String("path", path),
				slog.Int("status", resp.status),
				slog.String("preview", preview(resp.body, previewMaxLength)),
			)
			continue
		}
		rows, _, err := ParseCSV(resp.body)
		if err != nil {
			c.log(ctx).Debug("pf csv parse failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		return rows, nil
	}
	return nil, nil
}

// RawAttempt describes one debug attempt against a CSV endpoint.
type RawAttempt struct {
	AttemptHeaders []string `json:"attempt_headers"`
	StatusCode     int      `json:"status_code"`
	Preview        string   `json:"preview"`
}

// RawResult is the outcome of GetCSVRaw.
type RawResult struct {
	OK         bool         `json:"ok"`
	StatusCode int          `json:"status_code,omitempty"`
	Columns    []string     `json:"columns,omitempty"`
	FirstRow   Row          `json:"first_row,omitempty"`
	Error      string       `json:"error,omitempty"`
	Tries      []RawAttempt `json:"tries,omitempty"`
}

// GetCSVRaw probes a CSV endpoint and reports status codes and the header row
// instead of hiding failures.
func (c *Client) GetCSVRaw(ctx context.Context, path string, params url.Values) (*RawResult, error) {
	if c.apiKey == "" {
		return &RawResult{OK: false, Error: ErrMissingAPIKey.Error()}, nil
	}
	result := &RawResult{}
	for _, a := range attempts {
		resp, err := c.do(ctx, path, "text/csv", params, a)
		if err != nil {
			return nil, err
		}
		headers := []string{"accept"}
		if a.header {
			headers = append(headers, "X-Api-Key")
		}
		result.Tries = append(result.Tries, RawAttempt{
			AttemptHeaders: headers,
			StatusCode:     resp.status,
			Preview:        preview(resp.body, rawPreviewLength),
		})
		if resp.status == http.StatusOK {
			rows, columns, err := ParseCSV(resp.body)
			if err != nil {
				return &RawResult{OK: false, StatusCode: http.StatusOK, Error: fmt.Sprintf("CSV parse error: %v", err)}, nil
			}
			out := &RawResult{OK: true, StatusCode: http.StatusOK, Columns: columns}
			if len(rows) > 0 {
				out.FirstRow = rows[0]
			}
			return out, nil
		}
	}
	return result, nil
}

// ParseCSV decodes a CSV body with a header row into rows. A leading BOM and
// surrounding line breaks are ignored; an empty body yields no rows.
func ParseCSV(body []byte) ([]Row, []string, error) {
	trimmed := bytes.Trim(body, "\uFEFF\r\n")
	if len(bytes.TrimSpace(trimmed)) == 0 {
		return nil, nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(trimmed))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, header, fmt.Errorf("read csv record: %w", err)
		}
		row := make(Row, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}
