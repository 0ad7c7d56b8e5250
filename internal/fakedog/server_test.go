package fakedog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogpushhq/dogpush/internal/datadog"
	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/monitor"
)

func newClient(t *testing.T, cfg Config, apiKey string) (*datadog.Client, *Server) {
	t.Helper()
	fake := New(cfg, Dependencies{Now: func() time.Time { return time.Unix(1700000000, 0) }})
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := datadog.NewClient(
		datadog.Config{BaseURL: srv.URL, APIKey: apiKey, AppKey: "app"},
		datadog.Dependencies{HTTPClient: srv.Client()},
	)
	require.NoError(t, err)
	return client, fake
}

func TestMonitorLifecycle(t *testing.T) {
	client, fake := newClient(t, Config{}, "api")
	ctx := context.Background()

	id, err := client.CreateMonitor(ctx, monitor.Raw{
		"name":    "cpu high",
		"type":    "metric alert",
		"query":   "avg(last_5m):avg:system.cpu.user{*} > 90",
		"options": map[string]any{"renotify_interval": 15},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), id)

	monitors, err := client.ListMonitors(ctx, true)
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	m := monitors[0].Clone()
	assert.Equal(t, int64(1000), m["id"])
	assert.Equal(t, false, m["multi"])
	assert.Equal(t, "No Data", m["overall_state"])
	assert.Equal(t, []any{}, m["matching_downtimes"])
	assert.Equal(t, map[string]any{
		"renotify_interval": int64(15),
		"notify_audit":      false,
		"locked":            false,
		"silenced":          map[string]any{},
	}, m.Options())

	require.NoError(t, client.MuteMonitor(ctx, id, 1700003600))
	require.NoError(t, client.UpdateMonitor(ctx, id, monitor.Raw{
		"name":  "cpu high",
		"type":  "metric alert",
		"query": "avg(last_5m):avg:system.cpu.user{*} > 95",
	}))

	stored, ok := fake.Store().Get(id)
	require.True(t, ok)
	stored = monitor.Raw(stored).Clone()
	assert.Equal(t, "avg(last_5m):avg:system.cpu.user{*} > 95", stored["query"])
	assert.Equal(t, map[string]any{"*": int64(1700003600)}, monitor.Raw(stored).Options()["silenced"])
	assert.Equal(t, "2023-11-14T22:13:20Z", stored["created"])

	require.NoError(t, client.DeleteMonitor(ctx, id))
	assert.Equal(t, 0, fake.Store().Len())

	assert.Equal(t, 1, fake.Calls(http.MethodGet))
	assert.Equal(t, 2, fake.Calls(http.MethodPost))
	assert.Equal(t, 4, fake.Writes())
	fake.ResetCalls()
	assert.Equal(t, 0, fake.Writes())
}

func TestCreateValidation(t *testing.T) {
	client, fake := newClient(t, Config{}, "api")
	_, err := client.CreateMonitor(context.Background(), monitor.Raw{"query": "q"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Remote))
	assert.Contains(t, err.Error(), "Missing 'name' parameter")
	assert.Equal(t, 0, fake.Store().Len())
}

func TestUnknownMonitor(t *testing.T) {
	client, _ := newClient(t, Config{}, "api")
	err := client.MuteMonitor(context.Background(), 77, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestAuthentication(t *testing.T) {
	client, fake := newClient(t, Config{APIKey: "secret"}, "wrong")
	_, err := client.ListMonitors(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Forbidden")
	assert.Equal(t, 1, fake.Calls(http.MethodGet))
}
