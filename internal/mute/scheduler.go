package mute

import (
	"fmt"
	"sort"
	"time"

	"github.com/dogpushhq/dogpush/internal/errs"
)

// MaxHorizon bounds the search for the end of a mute window.
const MaxHorizon = 366 * 24 * time.Hour

// Condition is a named mute condition from the configuration.
type Condition struct {
	Expr     string
	Timezone string
}

// Rule is a compiled Condition.
type Rule struct {
	Key  string
	expr *Expr
	loc  *time.Location
}

// Compile parses the expression and loads the timezone of c.
func Compile(key string, c Condition) (*Rule, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errs.New(errs.MuteExpression, fmt.Sprintf("mute condition %q: timezone %q", key, c.Timezone), err)
	}
	expr, err := Parse(c.Expr)
	if err != nil {
		return nil, errs.New(errs.MuteExpression, fmt.Sprintf("mute condition %q: expression %q", key, c.Expr), err)
	}
	return &Rule{Key: key, expr: expr, loc: loc}, nil
}

// ShouldMute evaluates the rule at now, converted to the rule's timezone.
func (r *Rule) ShouldMute(now time.Time) bool {
	return r.expr.Eval(now.In(r.loc))
}

// MuteUntil returns the earliest time, on or after now, at which the rule
// stops holding. It steps forward one hour at a time; when any stepping
// happened the result is rounded down to the start of its hour in the rule's
// timezone, so zones with a half-hour offset end on a local full hour. The
// result is in the rule's timezone.
func (r *Rule) MuteUntil(now time.Time) (time.Time, error) {
	t := now
	stepped := false
	for r.ShouldMute(t) {
		if t.Sub(now) >= MaxHorizon {
			return time.Time{}, errs.Newf(errs.MuteExpression, "mute condition %q holds for more than %s after %s", r.Key, MaxHorizon, now.Format(time.RFC3339))
		}
		t = t.Add(time.Hour)
		stepped = true
	}
	t = t.In(r.loc)
	if stepped {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, r.loc)
	}
	return t, nil
}

// Window is the end of an active mute window.
type Window struct {
	Until     time.Time
	Timestamp int64
}

// Plan is the outcome of evaluating every condition at one instant.
type Plan struct {
	// Windows holds the conditions that currently call for muting.
	Windows map[string]Window
	// Inactive holds the conditions that evaluated to false.
	Inactive map[string]struct{}
	// Failed holds the conditions that could not be compiled or resolved.
	Failed map[string]error
}

// Lookup returns the window for key. muting is false when the condition
// does not currently hold. err is set for unknown or failed conditions.
func (p Plan) Lookup(key string) (w Window, muting bool, err error) {
	if w, ok := p.Windows[key]; ok {
		return w, true, nil
	}
	if _, ok := p.Inactive[key]; ok {
		return Window{}, false, nil
	}
	if err, ok := p.Failed[key]; ok {
		return Window{}, false, err
	}
	return Window{}, false, errs.Newf(errs.Validation, "unknown mute condition %q", key)
}

// FailedKeys returns the failed condition keys, sorted.
func (p Plan) FailedKeys() []string {
	keys := make([]string, 0, len(p.Failed))
	for k := range p.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Evaluate resolves every condition at now. A condition that fails does not
// affect the others.
func Evaluate(conditions map[string]Condition, now time.Time) Plan {
	plan := Plan{
		Windows:  make(map[string]Window),
		Inactive: make(map[string]struct{}),
		Failed:   make(map[string]error),
	}
	for key, cond := range conditions {
		rule, err := Compile(key, cond)
		if err != nil {
			plan.Failed[key] = err
			continue
		}
		if !rule.ShouldMute(now) {
			plan.Inactive[key] = struct{}{}
			continue
		}
		until, err := rule.MuteUntil(now)
		if err != nil {
			plan.Failed[key] = err
			continue
		}
		plan.Windows[key] = Window{Until: until, Timestamp: until.Unix()}
	}
	return plan
}
