// Package mute decides whether alerts tagged with a mute condition should be
// silenced, and until when.
//
// Mute conditions are boolean expressions over the calendar fields of the
// current time in a configured timezone, for example
//
//	now.weekday() >= 5 or not (9 <= now.hour < 18)
//
// Expressions are parsed into a small typed AST. Only comparisons, membership
// tests and boolean connectives over a fixed set of fields are accepted.
package mute

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type kind int

const (
	kindInt kind = iota
	kindBool
)

func (k kind) String() string {
	if k == kindBool {
		return "boolean"
	}
	return "integer"
}

type value struct {
	b bool
	n int64
}

type node interface {
	typ() kind
	eval(t time.Time) value
}

var fields = map[string]func(time.Time) int64{
	"year":       func(t time.Time) int64 { return int64(t.Year()) },
	"month":      func(t time.Time) int64 { return int64(t.Month()) },
	"day":        func(t time.Time) int64 { return int64(t.Day()) },
	"hour":       func(t time.Time) int64 { return int64(t.Hour()) },
	"minute":     func(t time.Time) int64 { return int64(t.Minute()) },
	"second":     func(t time.Time) int64 { return int64(t.Second()) },
	"weekday":    func(t time.Time) int64 { return int64((t.Weekday() + 6) % 7) },
	"isoweekday": func(t time.Time) int64 { return int64((t.Weekday()+6)%7) + 1 },
	"yearday":    func(t time.Time) int64 { return int64(t.YearDay()) },
}

// Fields lists the names an expression may reference.
func Fields() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type intLit int64

func (intLit) typ() kind { return kindInt }
func (l intLit) eval(time.Time) value { return value{n: int64(l)} }

type boolLit bool

func (boolLit) typ() kind { return kindBool }
func (l boolLit) eval(time.Time) value { return value{b: bool(l)} }

type fieldRef struct {
	name string
	get  func(time.Time) int64
}

func (fieldRef) typ() kind { return kindInt }
func (f fieldRef) eval(t time.Time) value { return value{n: f.get(t)} }

type notExpr struct{ x node }

func (notExpr) typ() kind { return kindBool }
func (n notExpr) eval(t time.Time) value { return value{b: !n.x.eval(t).b} }

type logicalExpr struct {
	and         bool
	left, right node
}

func (logicalExpr) typ() kind { return kindBool }

func (l logicalExpr) eval(t time.Time) value {
	left := l.left.eval(t).b
	if l.and && !left {
		return value{b: false}
	}
	if !l.and && left {
		return value{b: true}
	}
	return value{b: l.right.eval(t).b}
}

// compareExpr is a comparison chain: a < b <= c means a < b and b <= c.
type compareExpr struct {
	operands []node
	ops      []string
}

func (compareExpr) typ() kind { return kindBool }

func (c compareExpr) eval(t time.Time) value {
	left := c.operands[0].eval(t)
	for i, op := range c.ops {
		right := c.operands[i+1].eval(t)
		if !compare(op, left, right) {
			return value{b: false}
		}
		left = right
	}
	return value{b: true}
}

func compare(op string, a, b value) bool {
	switch op {
	case "<":
		return a.n < b.n
	case "<=":
		return a.n <= b.n
	case ">":
		return a.n > b.n
	case ">=":
		return a.n >= b.n
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

type memberExpr struct {
	x      node
	set    []int64
	negate bool
}

func (memberExpr) typ() kind { return kindBool }

func (m memberExpr) eval(t time.Time) value {
	n := m.x.eval(t).n
	found := false
	for _, v := range m.set {
		if v == n {
			found = true
			break
		}
	}
	return value{b: found != m.negate}
}

// Expr is a parsed mute expression.
type Expr struct {
	src  string
	root node
}

// String returns the source text.
func (e *Expr) String() string {
	return e.src
}

// Eval evaluates the expression against t. Callers convert t to the
// condition's timezone first.
func (e *Expr) Eval(t time.Time) bool {
	return e.root.eval(t).b
}

// Parse compiles src. Syntax errors, unknown fields and type mismatches are
// all reported here, so a parsed Expr always evaluates.
func Parse(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("position %d: unexpected %s", tok.pos, tok)
	}
	if root.typ() != kindBool {
		return nil, fmt.Errorf("expression must be boolean, got %s", root.typ())
	}
	return &Expr{src: src, root: root}, nil
}
