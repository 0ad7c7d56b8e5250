package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/dogpushhq/dogpush/internal/metrics"
	"github.com/dogpushhq/dogpush/internal/monitor"
	"github.com/dogpushhq/dogpush/internal/reconcile"
)

// DiffOptions configure Diff.
type DiffOptions struct {
	// IgnoreUntracked leaves remote-only monitors out of the report and the
	// exit status.
	IgnoreUntracked bool
	// ExitStatus makes Diff return ErrDrift when anything differs.
	ExitStatus bool
}

const rule = "---------------------------------------------------------"

// Diff reports new, changed and untracked monitors.
func (r *Runner) Diff(ctx context.Context, opts DiffOptions) error {
	local, remote, err := r.loadBoth(ctx)
	if err != nil {
		return err
	}
	res := reconcile.Diff(local, remote)
	if opts.IgnoreUntracked {
		res.OnlyRemote = nil
	}
	r.metrics.SetDrift(metrics.DriftNew, len(res.OnlyLocal))
	r.metrics.SetDrift(metrics.DriftChanged, len(res.Changed))
	r.metrics.SetDrift(metrics.DriftUntracked, len(res.OnlyRemote))

	if len(res.OnlyLocal) > 0 {
		r.banner(
			" NEW MONITORS.  These monitors are currently missing in",
			fmt.Sprintf(" datadog and can be pushed using %q", ProgramName+" push"),
		)
		if err := r.printBodies(local, res.OnlyLocal); err != nil {
			return err
		}
	}

	if len(res.Changed) > 0 {
		r.banner(
			" TO BE UPDATED.  These monitors exist in datadog, but are",
			fmt.Sprintf(" different than the local version.  Use %q", ProgramName+" push"),
			" to push them to datadog.",
		)
		fmt.Fprintln(r.out)
		for _, name := range res.Changed {
			l, _ := local.Get(name)
			rm, _ := remote.Get(name)
			text, err := reconcile.UnifiedDiff(r.renderer, l, rm)
			if err != nil {
				return err
			}
			r.printDiff(text)
		}
	}

	if len(res.OnlyRemote) > 0 {
		r.banner(
			" UNTRACKED MONITORS.  These monitors are only in datadog",
			" and need to be MANUALLY added to a local file or removed",
			" from datadog.",
		)
		if err := r.printBodies(remote, res.OnlyRemote); err != nil {
			return err
		}
	}

	if res.Empty() {
		r.logger.Info("local and remote monitors are in sync")
		return nil
	}
	if !opts.ExitStatus {
		return nil
	}
	r.paint.fail.Fprintf(r.out, "*** FAILED *** %d new, %d changed, %d untracked monitors.\n",
		len(res.OnlyLocal), len(res.Changed), len(res.OnlyRemote))
	return ErrDrift
}

func (r *Runner) banner(lines ...string) {
	var b strings.Builder
	b.WriteString(rule + "\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	b.WriteString(rule + "\n")
	r.paint.warning.Fprint(r.out, b.String())
}

func (r *Runner) printBodies(col *monitor.Collection, names []string) error {
	monitors := make([]*monitor.Canonical, 0, len(names))
	for _, name := range names {
		m, _ := col.Get(name)
		monitors = append(monitors, m)
	}
	text, err := r.renderer.RenderBodies(monitors)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, text)
	return nil
}

func (r *Runner) printDiff(text string) {
	for _, line := range strings.SplitAfter(text, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			r.paint.bold.Fprint(r.out, line)
		case strings.HasPrefix(line, "-"):
			r.paint.red.Fprint(r.out, line)
		case strings.HasPrefix(line, "+"):
			r.paint.green.Fprint(r.out, line)
		default:
			fmt.Fprint(r.out, line)
		}
	}
}
