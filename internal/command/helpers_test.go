package command

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/dogpushhq/dogpush/internal/config"
	"github.com/dogpushhq/dogpush/internal/fakedog"
	"github.com/dogpushhq/dogpush/internal/monitor"
)

const baseConfig = `
teams:
  ops:
    notifications:
      alert: "@pagerduty-ops"
rule_files:
  - rules/*.yaml
`

type call struct {
	op   string
	id   int64
	name string
	end  int64
}

// recordingAPI serves canned listings and records every mutating call.
type recordingAPI struct {
	mu        sync.Mutex
	listings  [][]monitor.Raw
	listCalls int
	calls     []call
	failNames map[string]error
	nextID    int64
}

func (a *recordingAPI) ListMonitors(_ context.Context, _ bool) ([]monitor.Raw, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.listCalls
	if i >= len(a.listings) {
		i = len(a.listings) - 1
	}
	a.listCalls++
	if i < 0 {
		return nil, nil
	}
	return a.listings[i], nil
}

func (a *recordingAPI) record(c call) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
	if err, ok := a.failNames[c.name]; ok {
		return err
	}
	return nil
}

func (a *recordingAPI) CreateMonitor(_ context.Context, body monitor.Raw) (int64, error) {
	name, _ := body["name"].(string)
	if err := a.record(call{op: "create", name: name}); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	return a.nextID, nil
}

func (a *recordingAPI) UpdateMonitor(_ context.Context, id int64, body monitor.Raw) error {
	name, _ := body["name"].(string)
	return a.record(call{op: "update", id: id, name: name})
}

func (a *recordingAPI) DeleteMonitor(_ context.Context, id int64) error {
	return a.record(call{op: "delete", id: id})
}

func (a *recordingAPI) MuteMonitor(_ context.Context, id int64, end int64) error {
	return a.record(call{op: "mute", id: id, end: end})
}

var errBoom = errors.New("boom")

// workspace writes a config file and rule files under a temp dir and returns
// the parsed configuration.
func workspace(t *testing.T, cfgYAML string, files map[string]string) config.Config {
	t.Helper()
	t.Setenv("DATADOG_HOST", "")
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	cfg, err := config.Parse([]byte(cfgYAML), dir)
	require.NoError(t, err)
	return cfg
}

func newRunner(t *testing.T, cfg config.Config, api API, now time.Time) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := NewRunner(cfg, Dependencies{
		API: api,
		Out: &out,
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)
	return r, &out
}

// fakeService starts a fakedog server and points cfg at it.
func fakeService(t *testing.T, cfg *config.Config) *fakedog.Server {
	t.Helper()
	fake := fakedog.New(fakedog.Config{APIKey: "api", AppKey: "app"}, fakedog.Dependencies{})
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg.Datadog.APIURL = srv.URL
	cfg.Datadog.APIKey = "api"
	cfg.Datadog.AppKey = "app"
	return fake
}

func apiClient(t *testing.T, cfg config.Config) API {
	t.Helper()
	client, err := NewAPIClient(cfg, nil, nil)
	require.NoError(t, err)
	return client
}
