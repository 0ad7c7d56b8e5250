// Package notify renders the notification text appended to a monitor message
// for the teams that own it.
package notify

import (
	"strings"

	"github.com/dogpushhq/dogpush/internal/errs"
)

const (
	CategoryWarning  = "warning"
	CategoryAlert    = "alert"
	CategoryRecovery = "recovery"
)

// Severities accepted on alert declarations, most severe first.
var Severities = []string{"CRITICAL", "WARNING", "INFO"}

// DefaultSeverity applies when an alert declares none.
const DefaultSeverity = "CRITICAL"

// Directory maps a team id to its notification categories and their recipients.
type Directory map[string]map[string][]string

// Builder renders the notification body for a set of teams.
type Builder interface {
	Build(teams []string, severity string) (string, error)
}

// ValidSeverity reports whether s is one of Severities.
func ValidSeverity(s string) bool {
	for _, sev := range Severities {
		if s == sev {
			return true
		}
	}
	return false
}

func (d Directory) team(id string) (map[string][]string, error) {
	categories, ok := d[id]
	if !ok {
		return nil, errs.Newf(errs.Validation, "unknown team %q", id)
	}
	return categories, nil
}

// Conditional renders Datadog conditional blocks for the warning, alert and
// recovery phases. Recovery recipients are the union of warning and alert.
type Conditional struct {
	Directory Directory
}

// NewConditional returns a Conditional builder over dir.
func NewConditional(dir Directory) *Conditional {
	return &Conditional{Directory: dir}
}

// Build implements Builder. Severity is not used by this scheme.
func (c *Conditional) Build(teams []string, _ string) (string, error) {
	warning := &recipientSet{}
	alert := &recipientSet{}
	for _, id := range teams {
		categories, err := c.Directory.team(id)
		if err != nil {
			return "", err
		}
		warning.add(categories[CategoryWarning]...)
		alert.add(categories[CategoryAlert]...)
	}
	recovery := &recipientSet{}
	recovery.add(warning.items...)
	recovery.add(alert.items...)

	var b strings.Builder
	writeBlock(&b, "is_warning", warning.items)
	writeBlock(&b, "is_alert", alert.items)
	writeBlock(&b, "is_recovery", recovery.items)
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func writeBlock(b *strings.Builder, variable string, recipients []string) {
	if len(recipients) == 0 {
		return
	}
	b.WriteString("{{#" + variable + "}}\n")
	b.WriteString(strings.Join(recipients, "\n"))
	b.WriteString("\n{{/" + variable + "}}\n")
}

// SeverityLine appends the recipients configured for the alert severity, one
// line per team.
type SeverityLine struct {
	Directory Directory
}

// NewSeverityLine returns a SeverityLine builder over dir.
func NewSeverityLine(dir Directory) *SeverityLine {
	return &SeverityLine{Directory: dir}
}

// Build implements Builder.
func (s *SeverityLine) Build(teams []string, severity string) (string, error) {
	if severity == "" {
		severity = DefaultSeverity
	}
	lines := make([]string, 0, len(teams))
	for _, id := range teams {
		categories, err := s.Directory.team(id)
		if err != nil {
			return "", err
		}
		recipients, ok := categories[severity]
		if !ok {
			return "", errs.Newf(errs.Validation, "team %q has no notifications for severity %s", id, severity)
		}
		lines = append(lines, strings.Join(recipients, " "))
	}
	return strings.Join(lines, "\n"), nil
}

type recipientSet struct {
	items []string
	seen  map[string]struct{}
}

func (r *recipientSet) add(recipients ...string) {
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	for _, rcpt := range recipients {
		if _, dup := r.seen[rcpt]; dup {
			continue
		}
		r.seen[rcpt] = struct{}{}
		r.items = append(r.items, rcpt)
	}
}
