// Package config loads the dogpush configuration file.
package config

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	promconfig "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/monitor"
	"github.com/dogpushhq/dogpush/internal/mute"
	"github.com/dogpushhq/dogpush/internal/notify"
)

const (
	DefaultConfigPath = "./config.yaml"
	DefaultAPIURL     = "https://api.datadoghq.com"
	DefaultTimeout    = model.Duration(30 * time.Second)
	DefaultYAMLWidth  = 80

	envAPIKey  = "DATADOG_API_KEY"
	envAppKey  = "DATADOG_APP_KEY"
	envAPIHost = "DATADOG_HOST"
)

// Notification styles.
const (
	StyleConditional = "conditional"
	StyleSeverity    = "severity"
)

type Config struct {
	Teams              map[string]Team    `yaml:"teams"`
	Datadog            DatadogConfig      `yaml:"datadog"`
	DefaultRuleOptions map[string]any     `yaml:"default_rule_options"`
	DefaultRules       map[string]any     `yaml:"default_rules"`
	RuleFiles          []string           `yaml:"rule_files"`
	MuteTags           map[string]MuteTag `yaml:"mute_tags"`
	Dogpush            DogpushConfig      `yaml:"dogpush"`

	dir string
}

type Team struct {
	Notifications map[string]Recipients `yaml:"notifications"`
}

// Recipients accepts either a single string or a list of strings.
type Recipients []string

func (r *Recipients) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*r = nil
			return nil
		}
		*r = Recipients{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("line %d: recipients must be a string or a list of strings", node.Line)
	}
}

type DatadogConfig struct {
	APIKey     promconfig.Secret           `yaml:"api_key"`
	AppKey     promconfig.Secret           `yaml:"app_key"`
	APIURL     string                      `yaml:"api_url"`
	Mute       bool                        `yaml:"mute"`
	Timeout    model.Duration              `yaml:"timeout"`
	RateLimit  float64                     `yaml:"rate_limit"`
	Burst      int                         `yaml:"burst"`
	HTTPClient promconfig.HTTPClientConfig `yaml:"http_client"`
}

// String renders the section as YAML with the keys redacted.
func (d DatadogConfig) String() string {
	b, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Sprintf("<error marshalling datadog config: %v>", err)
	}
	return string(b)
}

type MuteTag struct {
	Expr     string `yaml:"expr"`
	Timezone string `yaml:"timezone"`
}

type DogpushConfig struct {
	IgnorePrefix      string `yaml:"ignore_prefix"`
	YAMLWidth         int    `yaml:"yaml_width"`
	NotificationStyle string `yaml:"notification_style"`
}

// Load reads, defaults and validates the configuration file at path.
func Load(ctx context.Context, path string) (Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Config{}, errs.New(errs.Config, fmt.Sprintf("open config %q", path), err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Config{}, errs.New(errs.Config, fmt.Sprintf("read config %q", path), err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, errs.New(errs.Config, fmt.Sprintf("resolve config %q", path), err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes data as a configuration file living in dir. Relative rule
// file patterns and HTTP client files are resolved against dir.
func Parse(data []byte, dir string) (Config, error) {
	cfg := Config{dir: dir}
	cfg.Datadog.HTTPClient = promconfig.DefaultHTTPClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.New(errs.Config, "parse config", err)
	}
	cfg.applyDefaults()
	cfg.Datadog.HTTPClient.SetDirectory(dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Teams == nil {
		c.Teams = map[string]Team{}
	}
	if c.Datadog.APIKey == "" {
		c.Datadog.APIKey = promconfig.Secret(os.Getenv(envAPIKey))
	}
	if c.Datadog.AppKey == "" {
		c.Datadog.AppKey = promconfig.Secret(os.Getenv(envAppKey))
	}
	if c.Datadog.APIURL == "" {
		c.Datadog.APIURL = os.Getenv(envAPIHost)
	}
	if c.Datadog.APIURL == "" {
		c.Datadog.APIURL = DefaultAPIURL
	}
	if c.Datadog.Timeout == 0 {
		c.Datadog.Timeout = DefaultTimeout
	}
	if c.Datadog.RateLimit > 0 && c.Datadog.Burst == 0 {
		c.Datadog.Burst = 1
	}
	if c.DefaultRuleOptions == nil {
		c.DefaultRuleOptions = defaultsToMap(monitor.LocalOptionDefaults())
	}
	if c.DefaultRules == nil {
		c.DefaultRules = defaultsToMap(monitor.RuleDefaults())
	}
	if c.Dogpush.YAMLWidth == 0 {
		c.Dogpush.YAMLWidth = DefaultYAMLWidth
	}
	if c.Dogpush.NotificationStyle == "" {
		c.Dogpush.NotificationStyle = StyleConditional
	}
}

func defaultsToMap(defaults []monitor.Default) map[string]any {
	m := make(map[string]any, len(defaults))
	for _, d := range defaults {
		m[d.Key] = d.Value
	}
	return m
}

// Validate checks the invariants that must hold before any network call.
func (c *Config) Validate() error {
	for _, d := range monitor.ServerOptionDefaults() {
		if _, clash := c.DefaultRuleOptions[d.Key]; clash {
			return errs.Newf(errs.Config, "default_rule_options: %q is a built-in server option default", d.Key)
		}
	}

	for _, key := range sortedKeys(c.MuteTags) {
		tag := c.MuteTags[key]
		if strings.TrimSpace(tag.Expr) == "" {
			return errs.Newf(errs.Config, "mute_tags.%s: expr is required", key)
		}
		if tag.Timezone == "" {
			return errs.Newf(errs.Config, "mute_tags.%s: timezone is required", key)
		}
	}

	for i, pattern := range c.RuleFiles {
		if strings.TrimSpace(pattern) == "" {
			return errs.Newf(errs.Config, "rule_files[%d]: empty pattern", i)
		}
	}

	switch c.Dogpush.NotificationStyle {
	case StyleConditional, StyleSeverity:
	default:
		return errs.Newf(errs.Config, "dogpush.notification_style: unknown style %q (allowed: %s, %s)",
			c.Dogpush.NotificationStyle, StyleConditional, StyleSeverity)
	}
	if c.Dogpush.YAMLWidth < 0 {
		return errs.Newf(errs.Config, "dogpush.yaml_width must not be negative")
	}

	u, err := url.Parse(c.Datadog.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Newf(errs.Config, "datadog.api_url: %q is not an http(s) URL", c.Datadog.APIURL)
	}
	if c.Datadog.Timeout < 0 {
		return errs.Newf(errs.Config, "datadog.timeout must not be negative")
	}
	if c.Datadog.RateLimit < 0 || c.Datadog.Burst < 0 {
		return errs.Newf(errs.Config, "datadog.rate_limit and datadog.burst must not be negative")
	}
	return nil
}

// Dir is the absolute directory of the configuration file.
func (c Config) Dir() string {
	return c.dir
}

// RulePatterns returns the rule_files patterns resolved against Dir.
func (c Config) RulePatterns() []string {
	out := make([]string, 0, len(c.RuleFiles))
	for _, pattern := range c.RuleFiles {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(c.dir, pattern)
		}
		out = append(out, pattern)
	}
	return out
}

// Directory returns the team notification directory.
func (c Config) Directory() notify.Directory {
	dir := make(notify.Directory, len(c.Teams))
	for id, team := range c.Teams {
		categories := make(map[string][]string, len(team.Notifications))
		for category, recipients := range team.Notifications {
			categories[category] = []string(recipients)
		}
		dir[id] = categories
	}
	return dir
}

// Notifier returns the notification builder selected by dogpush.notification_style.
func (c Config) Notifier() notify.Builder {
	if c.Dogpush.NotificationStyle == StyleSeverity {
		return notify.NewSeverityLine(c.Directory())
	}
	return notify.NewConditional(c.Directory())
}

// Settings returns the canonicalization tables for this configuration.
func (c Config) Settings() monitor.Settings {
	s := monitor.DefaultSettings()
	s.LocalOptionDefaults = monitor.DefaultsFromMap(c.DefaultRuleOptions)
	s.RuleDefaults = monitor.DefaultsFromMap(c.DefaultRules)
	return s
}

// Canonicalizer builds the canonicalizer for this configuration.
func (c Config) Canonicalizer() *monitor.Canonicalizer {
	return monitor.NewCanonicalizer(c.Settings(), c.Notifier())
}

// MuteConditions returns the configured mute_tags.
func (c Config) MuteConditions() map[string]mute.Condition {
	out := make(map[string]mute.Condition, len(c.MuteTags))
	for key, tag := range c.MuteTags {
		out[key] = mute.Condition{Expr: tag.Expr, Timezone: tag.Timezone}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
