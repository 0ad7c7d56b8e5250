package monitor

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var topLevelItem = regexp.MustCompile(`(?m)^-`)

// Renderer pretty-prints canonical bodies as YAML.
type Renderer struct {
	// Width is the length above which single-line strings are emitted in
	// folded block style. Zero keeps every single-line string inline.
	Width int
}

// Render encodes v as YAML with two-space indentation. Top-level sequence
// items are separated by a blank line.
func (r Renderer) Render(v any) (string, error) {
	var node yaml.Node
	if err := node.Encode(Normalize(v)); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	r.style(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return "", fmt.Errorf("render yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("render yaml: %w", err)
	}
	return topLevelItem.ReplaceAllString(buf.String(), "\n-"), nil
}

// RenderBodies renders the bodies of the given monitors as a YAML sequence.
func (r Renderer) RenderBodies(monitors []*Canonical) (string, error) {
	bodies := make([]any, 0, len(monitors))
	for _, m := range monitors {
		bodies = append(bodies, map[string]any(m.Body))
	}
	return r.Render(bodies)
}

func (r Renderer) style(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		switch {
		case strings.Contains(n.Value, "\n"):
			n.Style = yaml.LiteralStyle
		case r.Width > 0 && len(n.Value) > r.Width && strings.Contains(n.Value, " "):
			n.Style = yaml.FoldedStyle
		}
	}
	for _, child := range n.Content {
		r.style(child)
	}
}
