package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/metrics"
	"github.com/dogpushhq/dogpush/internal/mute"
)

const muteTimeLayout = "2006-01-02 15:04:05 MST"

// Mute silences every pushed monitor whose mute_when condition holds now,
// until the condition stops holding. Broken conditions are reported and
// skipped; when a monitor relied on one, the command fails once everything
// else is done.
func (r *Runner) Mute(ctx context.Context) error {
	local, remote, err := r.loadBoth(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	plan := mute.Evaluate(r.cfg.MuteConditions(), now)
	referenced := make(map[string]bool)
	for _, name := range local.Names() {
		m, _ := local.Get(name)
		if m.MuteWhen != "" {
			referenced[m.MuteWhen] = true
		}
	}
	for _, key := range plan.FailedKeys() {
		entry := r.logger.WithError(plan.Failed[key]).WithField("condition", key)
		if referenced[key] {
			entry.Error("mute condition skipped")
		} else {
			entry.Warn("unused mute condition is invalid")
		}
	}

	broken := make(map[string]struct{})
	fails := &failures{tolerate: r.cfg.Datadog.Mute, logger: r.logger}

	for _, name := range local.Names() {
		m, _ := local.Get(name)
		if m.MuteWhen == "" {
			continue
		}
		rm, ok := remote.Get(name)
		if !ok {
			r.logger.WithField("monitor", name).Debug("monitor not pushed yet; not muting")
			continue
		}
		if rm.IsSilenced {
			fmt.Fprintf(r.out, "Alert '%s' is already muted. Skipping.\n", name)
			continue
		}

		w, muting, err := plan.Lookup(m.MuteWhen)
		if err != nil {
			if _, known := plan.Failed[m.MuteWhen]; !known {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"monitor":   name,
					"condition": m.MuteWhen,
				}).Error("monitor references an unknown mute condition")
			}
			broken[m.MuteWhen] = struct{}{}
			continue
		}
		if !muting {
			continue
		}

		fmt.Fprintf(r.out, "Muting alert '%s' until %s\n", name, w.Until.Format(muteTimeLayout))
		err = r.api.MuteMonitor(ctx, rm.ID, w.Timestamp)
		if err == nil {
			r.metrics.IncOperation(metrics.OpMuted)
		}
		if err := fails.record(name, err); err != nil {
			return fmt.Errorf("mute monitor %q: %w", name, err)
		}
	}

	if err := fails.err("mute"); err != nil {
		return err
	}
	if len(broken) > 0 {
		keys := make([]string, 0, len(broken))
		for key := range broken {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return errs.Newf(errs.MuteExpression, "mute conditions skipped: %v", keys)
	}
	return nil
}
