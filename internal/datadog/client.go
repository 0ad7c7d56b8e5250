// Package datadog talks to the Datadog monitor API.
package datadog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/logging"
	"github.com/dogpushhq/dogpush/internal/metrics"
	"github.com/dogpushhq/dogpush/internal/monitor"
)

const (
	MonitorPath = "/api/v1/monitor"

	HeaderAPIKey = "DD-API-KEY"
	HeaderAppKey = "DD-APPLICATION-KEY"

	userAgent = "dogpush/1.0"
)

// Config holds the static configuration for a Client.
type Config struct {
	BaseURL string
	APIKey  string
	AppKey  string
	// RateLimit is the sustained request rate per second. Zero disables throttling.
	RateLimit float64
	Burst     int
}

// Dependencies allow test overrides for HTTP client, clock, logging and metrics.
type Dependencies struct {
	HTTPClient *http.Client
	Metrics    metrics.Recorder
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

// Client performs monitor CRUD and mute calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	appKey     string
	limiter    *rate.Limiter
	metrics    metrics.Recorder
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewClient builds a Client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("API URL is required")
	}
	if deps.HTTPClient == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: deps.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		appKey:     cfg.AppKey,
		limiter:    limiter,
		metrics:    metrics.OrNoop(deps.Metrics),
		logger:     logging.OrDiscard(deps.Logger),
		now:        now,
	}, nil
}

// ListMonitors returns every monitor visible to the credentials, in API order.
func (c *Client) ListMonitors(ctx context.Context, withDowntimes bool) ([]monitor.Raw, error) {
	query := url.Values{}
	if withDowntimes {
		query.Set("with_downtimes", "true")
	}
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, MonitorPath, query, nil, &out); err != nil {
		return nil, err
	}
	monitors := make([]monitor.Raw, 0, len(out))
	for _, m := range out {
		monitors = append(monitors, monitor.Raw(m))
	}
	return monitors, nil
}

// CreateMonitor creates a monitor and returns its id.
func (c *Client) CreateMonitor(ctx context.Context, body monitor.Raw) (int64, error) {
	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, MonitorPath, nil, body, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// UpdateMonitor replaces the definition of monitor id.
func (c *Client) UpdateMonitor(ctx context.Context, id int64, body monitor.Raw) error {
	return c.do(ctx, http.MethodPut, monitorIDPath(id), nil, body, nil)
}

// DeleteMonitor removes monitor id.
func (c *Client) DeleteMonitor(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, monitorIDPath(id), nil, nil, nil)
}

// MuteMonitor silences every scope of monitor id until end (unix seconds).
func (c *Client) MuteMonitor(ctx context.Context, id int64, end int64) error {
	body := map[string]int64{"end": end}
	return c.do(ctx, http.MethodPost, monitorIDPath(id)+"/mute", nil, body, nil)
}

func monitorIDPath(id int64) string {
	return MonitorPath + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set(HeaderAppKey, c.appKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errs.New(errs.Remote, op, err)
		}
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, c.now().Sub(start))
		return errs.New(errs.Remote, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(method, resp.StatusCode, c.now().Sub(start))
	if err != nil {
		return errs.New(errs.Remote, op, fmt.Errorf("read response: %w", err))
	}
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("monitor API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.New(errs.Remote, op, newAPIError(resp, data))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errs.New(errs.Remote, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return "status " + e.Status
	}
	return fmt.Sprintf("status %s: %s", e.Status, strings.Join(e.Errors, "; "))
}

func newAPIError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	var payload struct {
		Errors []string `json:"errors"`
	}
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Errors = payload.Errors
	}
	if apiErr.Status == "" {
		apiErr.Status = strconv.Itoa(resp.StatusCode)
	}
	return apiErr
}
