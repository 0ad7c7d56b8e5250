package datadog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/metrics"
	"github.com/dogpushhq/dogpush/internal/monitor"
)

const baseURL = "https://dd.example.com"

type recordedRequest struct {
	method string
	code   int
}

type recorder struct {
	metrics.Noop
	requests []recordedRequest
}

func (r *recorder) ObserveRequest(method string, code int, _ time.Duration) {
	r.requests = append(r.requests, recordedRequest{method: method, code: code})
}

func newTestClient(t *testing.T, cfg Config) (*Client, *httpmock.MockTransport, *recorder) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	rec := &recorder{}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL + "/"
	}
	cfg.APIKey = "api"
	cfg.AppKey = "app"
	client, err := NewClient(cfg, Dependencies{
		HTTPClient: &http.Client{Transport: transport},
		Metrics:    rec,
	})
	require.NoError(t, err)
	return client, transport, rec
}

func checkKeys(t *testing.T, req *http.Request) {
	t.Helper()
	assert.Equal(t, "api", req.Header.Get(HeaderAPIKey))
	assert.Equal(t, "app", req.Header.Get(HeaderAppKey))
}

func TestListMonitors(t *testing.T) {
	client, transport, rec := newTestClient(t, Config{})
	transport.RegisterResponderWithQuery(http.MethodGet, baseURL+MonitorPath, "with_downtimes=true",
		func(req *http.Request) (*http.Response, error) {
			checkKeys(t, req)
			return httpmock.NewStringResponse(200, `[
				{"id": 12, "name": "cpu", "options": {"thresholds": {"critical": 90.0}, "renotify_interval": 15}},
				{"id": 13, "name": "disk", "query": "q", "options": {"thresholds": {"critical": 0.5}}}
			]`), nil
		})

	monitors, err := client.ListMonitors(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, monitors, 2)
	assert.Equal(t, "cpu", monitors[0]["name"])
	assert.Equal(t, json.Number("12"), monitors[0]["id"])

	opts := monitors[0].Clone().Options()
	assert.Equal(t, int64(15), opts["renotify_interval"])
	assert.Equal(t, []recordedRequest{{method: http.MethodGet, code: 200}}, rec.requests)
}

func TestCreateMonitor(t *testing.T) {
	client, transport, _ := newTestClient(t, Config{})
	var sent map[string]any
	transport.RegisterResponder(http.MethodPost, baseURL+MonitorPath,
		func(req *http.Request) (*http.Response, error) {
			checkKeys(t, req)
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			data, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(data, &sent))
			return httpmock.NewStringResponse(200, `{"id": 4242, "name": "cpu"}`), nil
		})

	id, err := client.CreateMonitor(context.Background(), monitor.Raw{"name": "cpu", "query": "avg:cpu > 90"})
	require.NoError(t, err)
	assert.Equal(t, int64(4242), id)
	assert.Equal(t, "avg:cpu > 90", sent["query"])
}

func TestUpdateDeleteMute(t *testing.T) {
	client, transport, _ := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPut, baseURL+"/api/v1/monitor/7",
		httpmock.NewStringResponder(200, `{"id": 7}`))
	transport.RegisterResponder(http.MethodDelete, baseURL+"/api/v1/monitor/7",
		httpmock.NewStringResponder(200, `{"deleted_monitor_id": 7}`))
	var muteBody map[string]int64
	transport.RegisterResponder(http.MethodPost, baseURL+"/api/v1/monitor/7/mute",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&muteBody))
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	ctx := context.Background()
	require.NoError(t, client.UpdateMonitor(ctx, 7, monitor.Raw{"name": "cpu"}))
	require.NoError(t, client.DeleteMonitor(ctx, 7))
	require.NoError(t, client.MuteMonitor(ctx, 7, 1760000000))
	assert.Equal(t, map[string]int64{"end": 1760000000}, muteBody)

	info := transport.GetCallCountInfo()
	assert.Equal(t, 1, info["PUT "+baseURL+"/api/v1/monitor/7"])
	assert.Equal(t, 1, info["DELETE "+baseURL+"/api/v1/monitor/7"])
}

func TestAPIError(t *testing.T) {
	client, transport, rec := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPost, baseURL+MonitorPath,
		httpmock.NewStringResponder(400, `{"errors": ["The value provided for parameter 'query' is invalid"]}`))

	_, err := client.CreateMonitor(context.Background(), monitor.Raw{"name": "bad"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Remote))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, []string{"The value provided for parameter 'query' is invalid"}, apiErr.Errors)
	assert.Contains(t, err.Error(), "POST /api/v1/monitor")
	assert.Equal(t, 400, rec.requests[0].code)
}

func TestTransportError(t *testing.T) {
	client, transport, rec := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodGet, baseURL+MonitorPath,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := client.ListMonitors(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Remote))
	assert.Equal(t, 0, rec.requests[0].code)
}

func TestRateLimitHonoursContext(t *testing.T) {
	client, transport, _ := newTestClient(t, Config{RateLimit: 0.001, Burst: 1})
	transport.RegisterResponder(http.MethodDelete, `=~^`+baseURL+`/api/v1/monitor/\d+\z`,
		httpmock.NewStringResponder(200, `{}`))

	require.NoError(t, client.DeleteMonitor(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.DeleteMonitor(ctx, 2)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Remote))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestNewClientRequiresSettings(t *testing.T) {
	_, err := NewClient(Config{}, Dependencies{HTTPClient: http.DefaultClient})
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: baseURL}, Dependencies{})
	assert.Error(t, err)
}
