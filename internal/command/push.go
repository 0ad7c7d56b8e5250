package command

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dogpushhq/dogpush/internal/metrics"
	"github.com/dogpushhq/dogpush/internal/monitor"
	"github.com/dogpushhq/dogpush/internal/reconcile"
)

// PushOptions configure Push.
type PushOptions struct {
	// DeleteUntracked removes remote monitors that have no local declaration.
	DeleteUntracked bool
}

// Push creates the monitors missing remotely and updates the changed ones.
// Every planned name is printed before the first API call.
func (r *Runner) Push(ctx context.Context, opts PushOptions) error {
	local, remote, err := r.loadBoth(ctx)
	if err != nil {
		return err
	}
	res := reconcile.Diff(local, remote)
	r.metrics.SetDrift(metrics.DriftNew, len(res.OnlyLocal))
	r.metrics.SetDrift(metrics.DriftChanged, len(res.Changed))
	r.metrics.SetDrift(metrics.DriftUntracked, len(res.OnlyRemote))

	if len(res.OnlyLocal) > 0 {
		fmt.Fprintf(r.out, "Pushing %d new monitors.\n", len(res.OnlyLocal))
		for _, name := range res.OnlyLocal {
			fmt.Fprintf(r.out, "  + %s\n", name)
		}
	}
	if len(res.Changed) > 0 {
		fmt.Fprintf(r.out, "Updating %d modified monitors.\n", len(res.Changed))
		for _, name := range res.Changed {
			fmt.Fprintf(r.out, "  ~ %s\n", name)
		}
	}

	fails := &failures{tolerate: r.cfg.Datadog.Mute, logger: r.logger}
	for _, name := range res.OnlyLocal {
		m, _ := local.Get(name)
		id, err := r.api.CreateMonitor(ctx, r.canon.Prepare(m))
		if err == nil {
			r.metrics.IncOperation(metrics.OpCreated)
			r.logger.WithFields(logrus.Fields{"monitor": name, "id": id}).Info("monitor created")
		}
		if err := fails.record(name, err); err != nil {
			return fmt.Errorf("create monitor %q: %w", name, err)
		}
	}
	for _, name := range res.Changed {
		m, _ := local.Get(name)
		rm, _ := remote.Get(name)
		err := r.api.UpdateMonitor(ctx, rm.ID, r.canon.Prepare(m))
		if err == nil {
			r.metrics.IncOperation(metrics.OpUpdated)
			r.logger.WithFields(logrus.Fields{"monitor": name, "id": rm.ID}).Info("monitor updated")
		}
		if err := fails.record(name, err); err != nil {
			return fmt.Errorf("update monitor %q: %w", name, err)
		}
	}

	if opts.DeleteUntracked {
		if err := r.deleteUntracked(ctx, local, fails); err != nil {
			return err
		}
	}
	return fails.err("monitor API")
}

// deleteUntracked re-fetches the remote side, since the creates and updates
// above changed it, and deletes every monitor without a local declaration.
func (r *Runner) deleteUntracked(ctx context.Context, local *monitor.Collection, fails *failures) error {
	remote, err := r.LoadRemote(ctx)
	if err != nil {
		return err
	}
	untracked := reconcile.Untracked(local, remote)
	if len(untracked) == 0 {
		return nil
	}

	fmt.Fprintf(r.out, "Deleting %d untracked monitors.\n", len(untracked))
	for _, name := range untracked {
		fmt.Fprintf(r.out, "  - %s\n", name)
	}
	for _, name := range untracked {
		rm, _ := remote.Get(name)
		err := r.api.DeleteMonitor(ctx, rm.ID)
		if err == nil {
			r.metrics.IncOperation(metrics.OpDeleted)
			r.logger.WithFields(logrus.Fields{"monitor": name, "id": rm.ID}).Info("monitor deleted")
		}
		if err := fails.record(name, err); err != nil {
			return fmt.Errorf("delete monitor %q: %w", name, err)
		}
	}
	return nil
}
