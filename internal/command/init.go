package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/dogpushhq/dogpush/internal/config"
	"github.com/dogpushhq/dogpush/internal/monitor"
)

// InitOptions configure Init.
type InitOptions struct {
	// Output is a file to write instead of the command output.
	Output string
}

// Init renders the current remote monitors as a starter alert file.
func (r *Runner) Init(ctx context.Context, opts InitOptions) error {
	remote, err := r.LoadRemote(ctx)
	if err != nil {
		return err
	}

	monitors := make([]*monitor.Canonical, 0, remote.Len())
	for _, name := range remote.Names() {
		m, _ := remote.Get(name)
		monitors = append(monitors, m)
	}
	doc, err := r.starterFile(monitors)
	if err != nil {
		return err
	}

	if opts.Output == "" {
		_, err := fmt.Fprint(r.out, doc)
		return err
	}
	if err := config.WriteFileAtomic(opts.Output, []byte(doc), 0o644); err != nil {
		return err
	}
	r.logger.WithField("file", opts.Output).WithField("alerts", len(monitors)).Info("wrote starter alert file")
	return nil
}

func (r *Runner) starterFile(monitors []*monitor.Canonical) (string, error) {
	var b strings.Builder
	b.WriteString("# team: TEAMNAME\n\n")
	if len(monitors) == 0 {
		b.WriteString("alerts: []\n")
		return b.String(), nil
	}
	body, err := r.renderer.RenderBodies(monitors)
	if err != nil {
		return "", err
	}
	b.WriteString("alerts:\n")
	b.WriteString(body)
	return b.String(), nil
}
