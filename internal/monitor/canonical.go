package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/notify"
)

// IgnoreFields are never stored locally: server audit metadata, plus the
// dogpush directives consumed while canonicalizing.
var IgnoreFields = []string{
	"created_at", "created", "modified", "creator",
	"org_id", "overall_state", "id", "deleted",
	"matching_downtimes",
	"mute_when", "team", "severity",
}

// IgnoreOptions are operational options that never count as drift.
var IgnoreOptions = []string{"silenced"}

// ServerOptionDefaults are the option values the API fills in on its own.
func ServerOptionDefaults() []Default {
	return []Default{
		{Key: "locked", Value: false},
		{Key: "notify_audit", Value: false},
		{Key: "silenced", Value: map[string]any{}},
	}
}

// LocalOptionDefaults apply when the configuration declares no default_rule_options.
func LocalOptionDefaults() []Default {
	return []Default{
		{Key: "notify_no_data", Value: true},
		{Key: "renotify_interval", Value: int64(15)},
	}
}

// RuleDefaults apply when the configuration declares no default_rules.
func RuleDefaults() []Default {
	return []Default{
		{Key: "multi", Value: false},
		{Key: "type", Value: "metric alert"},
	}
}

// Default is a single field and the value that makes it redundant.
type Default struct {
	Key   string
	Value any
}

// DefaultsFromMap converts a decoded default table into key-sorted Defaults.
func DefaultsFromMap(m map[string]any) []Default {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Default, 0, len(keys))
	for _, k := range keys {
		out = append(out, Default{Key: k, Value: Normalize(m[k])})
	}
	return out
}

// Settings carries the tables the Canonicalizer strips and restores.
type Settings struct {
	IgnoreFields         []string
	IgnoreOptions        []string
	ServerOptionDefaults []Default
	// LocalOptionDefaults win over ServerOptionDefaults on a key collision,
	// which configuration validation rules out anyway.
	LocalOptionDefaults []Default
	RuleDefaults        []Default
}

// DefaultSettings returns the built-in tables.
func DefaultSettings() Settings {
	return Settings{
		IgnoreFields:         IgnoreFields,
		IgnoreOptions:        IgnoreOptions,
		ServerOptionDefaults: ServerOptionDefaults(),
		LocalOptionDefaults:  LocalOptionDefaults(),
		RuleDefaults:         RuleDefaults(),
	}
}

// Source describes the origin of a raw record.
type Source struct {
	Origin      Origin
	Filename    string
	DefaultTeam []string
}

// Canonicalizer maps raw records to Canonical monitors.
type Canonicalizer struct {
	settings       Settings
	optionDefaults []Default
	notifier       notify.Builder
}

// NewCanonicalizer returns a Canonicalizer for the given tables and
// notification scheme.
func NewCanonicalizer(settings Settings, notifier notify.Builder) *Canonicalizer {
	if notifier == nil {
		notifier = notify.NewConditional(nil)
	}
	merged := make([]Default, 0, len(settings.ServerOptionDefaults)+len(settings.LocalOptionDefaults))
	local := make(map[string]struct{}, len(settings.LocalOptionDefaults))
	for _, d := range settings.LocalOptionDefaults {
		local[d.Key] = struct{}{}
	}
	for _, d := range settings.ServerOptionDefaults {
		if _, overridden := local[d.Key]; !overridden {
			merged = append(merged, d)
		}
	}
	merged = append(merged, settings.LocalOptionDefaults...)
	return &Canonicalizer{settings: settings, optionDefaults: merged, notifier: notifier}
}

// Canonicalize returns the canonical form of raw. The input is never modified.
func (c *Canonicalizer) Canonicalize(raw Raw, src Source) (*Canonical, error) {
	m := raw.Clone()
	where := src.Filename
	if where == "" {
		where = src.Origin.String()
	}

	team, hasTeam := m["team"]
	severity := m["severity"]
	muteWhen := m["mute_when"]
	rawID := m["id"]
	silenced := false

	if tags, ok := m["tags"]; ok && !Truthy(tags) {
		delete(m, "tags")
	}
	for _, field := range c.settings.IgnoreFields {
		delete(m, field)
	}

	if rawOpts, ok := m["options"]; ok {
		opts, isMap := rawOpts.(map[string]any)
		switch {
		case rawOpts == nil:
			delete(m, "options")
		case !isMap:
			return nil, errs.Newf(errs.Validation, "%s: monitor %v: options must be a mapping", where, m["name"])
		default:
			silenced = src.Origin == Remote && Truthy(opts["silenced"])
			for _, field := range c.settings.IgnoreOptions {
				delete(opts, field)
			}
			for _, d := range c.optionDefaults {
				if v, present := opts[d.Key]; present && Equal(v, d.Value) {
					delete(opts, d.Key)
				}
			}
			if len(opts) == 0 || isLoneCriticalThreshold(opts) {
				delete(m, "options")
			}
		}
	}
	for _, d := range c.settings.RuleDefaults {
		if v, present := m[d.Key]; present && Equal(v, d.Value) {
			delete(m, d.Key)
		}
	}

	nameVal, _ := m["name"].(string)
	name := strings.TrimSpace(nameVal)
	if name == "" {
		return nil, errs.Newf(errs.Validation, "%s: found monitor without a name", where)
	}
	m["name"] = name

	teams := src.DefaultTeam
	if hasTeam && team != nil {
		list, err := StringList(team)
		if err != nil {
			return nil, errs.New(errs.Validation, where+": monitor "+name+": team", err)
		}
		teams = list
	}
	sev := notify.DefaultSeverity
	if severity != nil {
		s, ok := severity.(string)
		if !ok || (s != "" && !notify.ValidSeverity(s)) {
			return nil, errs.Newf(errs.Validation, "%s: monitor %s: severity must be one of %v", where, name, notify.Severities)
		}
		if s != "" {
			sev = s
		}
	}
	if len(teams) > 0 {
		msg := ""
		if existing, present := m["message"]; present && existing != nil {
			s, ok := existing.(string)
			if !ok {
				return nil, errs.Newf(errs.Validation, "%s: monitor %s: message must be a string", where, name)
			}
			msg = s
		}
		body, err := c.notifier.Build(teams, sev)
		if err != nil {
			return nil, fmt.Errorf("%s: monitor %s: %w", where, name, err)
		}
		if body != "" {
			if msg != "" {
				msg += "\n"
			}
			msg += body
		}
		m["message"] = msg
	}

	var muteKey string
	if muteWhen != nil {
		s, ok := muteWhen.(string)
		if !ok {
			return nil, errs.Newf(errs.Validation, "%s: monitor %s: mute_when must be a string", where, name)
		}
		muteKey = s
	}

	id, err := parseID(rawID)
	if err != nil {
		return nil, errs.New(errs.Validation, where+": monitor "+name, err)
	}

	return &Canonical{
		Name:        name,
		ID:          id,
		Body:        m,
		MuteWhen:    muteKey,
		IsSilenced:  silenced,
		Origin:      src.Origin,
		Filename:    src.Filename,
		DefaultTeam: src.DefaultTeam,
	}, nil
}

// isLoneCriticalThreshold matches options that hold nothing but
// {thresholds: {critical: x}}. Such options are dropped entirely;
// multi-threshold options are kept.
func isLoneCriticalThreshold(opts map[string]any) bool {
	if len(opts) != 1 {
		return false
	}
	thresholds, ok := opts["thresholds"].(map[string]any)
	if !ok || len(thresholds) != 1 {
		return false
	}
	_, ok = thresholds["critical"]
	return ok
}

// Prepare re-inflates a canonical body with the configured option and rule
// defaults, without overriding explicit values, for submission to the API.
func (c *Canonicalizer) Prepare(m *Canonical) Raw {
	obj := m.Body.Clone()
	if len(c.settings.LocalOptionDefaults) > 0 {
		opts, ok := obj["options"].(map[string]any)
		if !ok {
			opts = map[string]any{}
			obj["options"] = opts
		}
		for _, d := range c.settings.LocalOptionDefaults {
			if _, present := opts[d.Key]; !present {
				opts[d.Key] = Normalize(d.Value)
			}
		}
	}
	for _, d := range c.settings.RuleDefaults {
		if _, present := obj[d.Key]; !present {
			obj[d.Key] = Normalize(d.Value)
		}
	}
	return obj
}
