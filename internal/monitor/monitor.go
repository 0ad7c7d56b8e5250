// Package monitor turns monitor records from local declarations and from the
// remote API into a canonical form that can be compared field by field.
package monitor

import (
	"fmt"
	"sort"

	"github.com/dogpushhq/dogpush/internal/errs"
)

// Raw is a monitor record as decoded from YAML or from the API.
type Raw map[string]any

// Clone returns a normalized deep copy of r.
func (r Raw) Clone() Raw {
	if r == nil {
		return Raw{}
	}
	return Raw(Normalize(map[string]any(r)).(map[string]any))
}

// Options returns the options mapping, or nil when absent or not a mapping.
func (r Raw) Options() map[string]any {
	opts, _ := r["options"].(map[string]any)
	return opts
}

// Origin tells where a canonical monitor was read from.
type Origin int

const (
	Local Origin = iota
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

// Canonical is the comparison-ready form of a monitor.
type Canonical struct {
	Name string
	// ID is zero for local monitors that were never pushed.
	ID         int64
	Body       Raw
	MuteWhen   string
	IsSilenced bool

	Origin      Origin
	Filename    string
	DefaultTeam []string
}

// Location describes where the monitor came from, for diagnostics.
func (c *Canonical) Location() string {
	if c.Origin == Remote {
		return fmt.Sprintf("datadog:%d", c.ID)
	}
	return c.Filename
}

// Collection holds canonical monitors keyed by unique name, in insertion order.
type Collection struct {
	names  []string
	byName map[string]*Canonical
}

// DuplicateReporter receives every duplicated name with the locations that declare it.
type DuplicateReporter func(name string, locations []string)

// NewCollection indexes monitors by name. Every duplicated name is passed to
// report before the validation error is returned.
func NewCollection(what string, monitors []*Canonical, report DuplicateReporter) (*Collection, error) {
	c := &Collection{
		names:  make([]string, 0, len(monitors)),
		byName: make(map[string]*Canonical, len(monitors)),
	}
	locations := make(map[string][]string)
	var dups []string
	for _, m := range monitors {
		if _, exists := c.byName[m.Name]; exists {
			if len(locations[m.Name]) == 1 {
				dups = append(dups, m.Name)
			}
			locations[m.Name] = append(locations[m.Name], m.Location())
			continue
		}
		locations[m.Name] = []string{m.Location()}
		c.byName[m.Name] = m
		c.names = append(c.names, m.Name)
	}
	if len(dups) == 0 {
		return c, nil
	}
	if report != nil {
		for _, name := range dups {
			report(name, locations[name])
		}
	}
	sort.Strings(dups)
	return nil, errs.Newf(errs.Validation, "duplicate names found in %s monitors: %v", what, dups)
}

// Len returns the number of monitors.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Names returns monitor names in insertion order.
func (c *Collection) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Get looks a monitor up by name.
func (c *Collection) Get(name string) (*Canonical, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.byName[name]
	return m, ok
}

// Has reports whether name is present.
func (c *Collection) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}
