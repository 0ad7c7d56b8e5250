// Package rules discovers and parses local alert declaration files.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/logging"
	"github.com/dogpushhq/dogpush/internal/monitor"
)

// File is a parsed alert declaration file.
type File struct {
	Path   string
	Team   []string
	Alerts []monitor.Raw
}

// Parse decodes the contents of an alert declaration file. An empty or null
// document declares no alerts.
func Parse(path string, data []byte) (File, error) {
	f := File{Path: path}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return f, errs.New(errs.Validation, fmt.Sprintf("%s: parse", path), err)
	}
	if doc == nil {
		return f, nil
	}
	root, ok := monitor.Normalize(doc).(map[string]any)
	if !ok {
		return f, errs.Newf(errs.Validation, "%s: expected a dictionary", path)
	}

	alerts, ok := root["alerts"].([]any)
	if !ok {
		return f, errs.Newf(errs.Validation, "%s: 'alerts' must be a list of alerts", path)
	}
	team, err := monitor.StringList(root["team"])
	if err != nil {
		return f, errs.New(errs.Validation, fmt.Sprintf("%s: team", path), err)
	}
	f.Team = team

	for i, item := range alerts {
		m, ok := item.(map[string]any)
		if !ok {
			return f, errs.Newf(errs.Validation, "%s: alert #%d must be a mapping", path, i+1)
		}
		f.Alerts = append(f.Alerts, monitor.Raw(m))
	}
	return f, nil
}

// Loader reads alert declarations and canonicalizes them.
type Loader struct {
	canon  *monitor.Canonicalizer
	logger logrus.FieldLogger
}

// NewLoader returns a Loader. A nil logger discards diagnostics.
func NewLoader(canon *monitor.Canonicalizer, logger logrus.FieldLogger) *Loader {
	return &Loader{canon: canon, logger: logging.OrDiscard(logger)}
}

// Files expands patterns, each sorted on its own, in pattern order. A file
// matched by several patterns is listed once.
func (l *Loader) Files(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errs.New(errs.Config, fmt.Sprintf("rule_files pattern %q", pattern), err)
		}
		if len(matches) == 0 {
			l.logger.WithField("pattern", pattern).Warn("rule_files pattern matched no files")
		}
		sort.Strings(matches)
		for _, path := range matches {
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			files = append(files, path)
		}
	}
	return files, nil
}

// LoadFile reads and canonicalizes every alert in path.
func (l *Loader) LoadFile(path string) ([]*monitor.Canonical, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.Config, fmt.Sprintf("read rule file %q", path), err)
	}
	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	out := make([]*monitor.Canonical, 0, len(f.Alerts))
	for _, raw := range f.Alerts {
		m, err := l.canon.Canonicalize(raw, monitor.Source{
			Origin:      monitor.Local,
			Filename:    path,
			DefaultTeam: f.Team,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Load reads every file matched by patterns into a Collection. Duplicate
// names are logged with their files before the error is returned.
func (l *Loader) Load(patterns []string) (*monitor.Collection, error) {
	files, err := l.Files(patterns)
	if err != nil {
		return nil, err
	}

	var all []*monitor.Canonical
	for _, path := range files {
		monitors, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.WithFields(logrus.Fields{"file": path, "alerts": len(monitors)}).Debug("loaded rule file")
		all = append(all, monitors...)
	}

	return monitor.NewCollection("local", all, func(name string, locations []string) {
		l.logger.WithFields(logrus.Fields{
			"name":      name,
			"locations": strings.Join(locations, ", "),
		}).Error("duplicate monitor name")
	})
}
