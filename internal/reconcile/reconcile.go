// Package reconcile computes the drift between local and remote monitor collections.
package reconcile

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dogpushhq/dogpush/internal/monitor"
)

// Result lists the names that differ between two collections. Every slice
// follows the insertion order of the collection it was drawn from.
type Result struct {
	OnlyLocal  []string
	OnlyRemote []string
	Changed    []string
}

// Empty reports whether the collections are in sync.
func (r Result) Empty() bool {
	return len(r.OnlyLocal) == 0 && len(r.OnlyRemote) == 0 && len(r.Changed) == 0
}

// Diff compares local against remote.
func Diff(local, remote *monitor.Collection) Result {
	var res Result
	for _, name := range local.Names() {
		l, _ := local.Get(name)
		r, ok := remote.Get(name)
		switch {
		case !ok:
			res.OnlyLocal = append(res.OnlyLocal, name)
		case IsChanged(l, r):
			res.Changed = append(res.Changed, name)
		}
	}
	res.OnlyRemote = Untracked(local, remote)
	return res
}

// Untracked returns remote names that have no local declaration.
func Untracked(local, remote *monitor.Collection) []string {
	var out []string
	for _, name := range remote.Names() {
		if !local.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// IsChanged compares canonical bodies. Monitors managed by a mute condition
// ignore the remote silenced option, since muting is not drift.
func IsChanged(local, remote *monitor.Canonical) bool {
	remoteBody := remote.Body
	if local.MuteWhen != "" {
		if _, silenced := remoteBody.Options()["silenced"]; silenced {
			remoteBody = remoteBody.Clone()
			delete(remoteBody.Options(), "silenced")
		}
	}
	return !monitor.Equal(map[string]any(local.Body), map[string]any(remoteBody))
}

// UnifiedDiff renders a line diff from the remote body to the local one.
func UnifiedDiff(r monitor.Renderer, local, remote *monitor.Canonical) (string, error) {
	from, err := r.Render(map[string]any(remote.Body))
	if err != nil {
		return "", fmt.Errorf("render remote %q: %w", remote.Name, err)
	}
	to, err := r.Render(map[string]any(local.Body))
	if err != nil {
		return "", fmt.Errorf("render local %q: %w", local.Name, err)
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: "datadog:" + remote.Name,
		ToFile:   local.Filename + ":" + local.Name,
		Context:  3,
	})
}
