// Package command implements the dogpush subcommands on top of the
// canonicalization, reconciliation and mute packages.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dogpushhq/dogpush/internal/config"
	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/logging"
	"github.com/dogpushhq/dogpush/internal/metrics"
	"github.com/dogpushhq/dogpush/internal/monitor"
	"github.com/dogpushhq/dogpush/internal/rules"
)

// ProgramName is used in operator hints.
const ProgramName = "dogpush"

// ErrDrift is returned by Diff when local and remote monitors differ and
// exit status reporting is enabled.
var ErrDrift = errors.New("monitors out of sync")

// API is the subset of the monitor API the commands use.
type API interface {
	ListMonitors(ctx context.Context, withDowntimes bool) ([]monitor.Raw, error)
	CreateMonitor(ctx context.Context, body monitor.Raw) (int64, error)
	UpdateMonitor(ctx context.Context, id int64, body monitor.Raw) error
	DeleteMonitor(ctx context.Context, id int64) error
	MuteMonitor(ctx context.Context, id int64, end int64) error
}

// Dependencies allow test overrides for the API, output, clock and telemetry.
type Dependencies struct {
	API     API
	Out     io.Writer
	Logger  logrus.FieldLogger
	Now     func() time.Time
	Metrics metrics.Recorder
	// Color enables ANSI colours in reports.
	Color bool
}

// Runner executes subcommands against one loaded configuration.
type Runner struct {
	cfg     config.Config
	api     API
	out     io.Writer
	logger  logrus.FieldLogger
	now     func() time.Time
	metrics metrics.Recorder

	canon    *monitor.Canonicalizer
	loader   *rules.Loader
	renderer monitor.Renderer
	paint    palette
}

// NewRunner builds a Runner.
func NewRunner(cfg config.Config, deps Dependencies) (*Runner, error) {
	if deps.API == nil {
		return nil, fmt.Errorf("monitor API is required")
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := logging.OrDiscard(deps.Logger)
	canon := cfg.Canonicalizer()

	return &Runner{
		cfg:      cfg,
		api:      deps.API,
		out:      deps.Out,
		logger:   logger,
		now:      deps.Now,
		metrics:  metrics.OrNoop(deps.Metrics),
		canon:    canon,
		loader:   rules.NewLoader(canon, logger),
		renderer: monitor.Renderer{Width: cfg.Dogpush.YAMLWidth},
		paint:    newPalette(deps.Color),
	}, nil
}

// LoadLocal reads every configured rule file.
func (r *Runner) LoadLocal() (*monitor.Collection, error) {
	return r.loader.Load(r.cfg.RulePatterns())
}

// LoadRemote fetches and canonicalizes the remote monitors, leaving out those
// whose name starts with the configured ignore prefix.
func (r *Runner) LoadRemote(ctx context.Context) (*monitor.Collection, error) {
	raws, err := r.api.ListMonitors(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list remote monitors: %w", err)
	}

	prefix := r.cfg.Dogpush.IgnorePrefix
	monitors := make([]*monitor.Canonical, 0, len(raws))
	ignored := 0
	for _, raw := range raws {
		if name, _ := raw["name"].(string); prefix != "" && strings.HasPrefix(name, prefix) {
			ignored++
			continue
		}
		m, err := r.canon.Canonicalize(raw, monitor.Source{Origin: monitor.Remote})
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	if ignored > 0 {
		r.logger.WithFields(logrus.Fields{"prefix": prefix, "count": ignored}).Debug("ignored remote monitors")
	}

	return monitor.NewCollection("remote", monitors, func(name string, locations []string) {
		r.logger.WithFields(logrus.Fields{
			"name":      name,
			"locations": strings.Join(locations, ", "),
		}).Error("duplicate monitor name")
	})
}

// loadBoth reads local declarations and remote monitors concurrently.
func (r *Runner) loadBoth(ctx context.Context) (local, remote *monitor.Collection, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = r.LoadLocal()
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = r.LoadRemote(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	r.logger.WithFields(logrus.Fields{"local": local.Len(), "remote": remote.Len()}).Debug("monitors loaded")
	return local, remote, nil
}

// failures collects API errors when datadog.mute asks to keep going.
type failures struct {
	tolerate bool
	logger   logrus.FieldLogger
	failed   []string
	attempts int
}

// record returns err when the run must stop, nil otherwise.
func (f *failures) record(what string, err error) error {
	f.attempts++
	if err == nil {
		return nil
	}
	if !f.tolerate {
		return err
	}
	f.logger.WithError(err).WithField("monitor", what).Error("API call failed; continuing")
	f.failed = append(f.failed, what)
	return nil
}

func (f *failures) err(kind string) error {
	if len(f.failed) == 0 {
		return nil
	}
	return errs.Newf(errs.Remote, "%d of %d %s calls failed: %s", len(f.failed), f.attempts, kind, strings.Join(f.failed, ", "))
}

type palette struct {
	warning *color.Color
	bold    *color.Color
	red     *color.Color
	green   *color.Color
	fail    *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		warning: mk(color.FgYellow),
		bold:    mk(color.Bold),
		red:     mk(color.FgRed),
		green:   mk(color.FgGreen),
		fail:    mk(color.FgRed, color.Bold),
	}
}
