package monitor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogpushhq/dogpush/internal/errs"
)

func TestNewCollectionKeepsOrder(t *testing.T) {
	c, err := NewCollection("local", []*Canonical{
		{Name: "zeta", Filename: "a.yaml"},
		{Name: "alpha", Filename: "a.yaml"},
		{Name: "mid", Filename: "b.yaml"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, c.Names())
	assert.Equal(t, 3, c.Len())
	m, ok := c.Get("mid")
	require.True(t, ok)
	assert.Equal(t, "b.yaml", m.Filename)
	assert.False(t, c.Has("missing"))
}

func TestNewCollectionReportsEveryDuplicate(t *testing.T) {
	reported := map[string][]string{}
	_, err := NewCollection("local", []*Canonical{
		{Name: "dup", Filename: "a.yaml"},
		{Name: "ok", Filename: "a.yaml"},
		{Name: "dup", Filename: "b.yaml"},
		{Name: "twice", Filename: "b.yaml"},
		{Name: "twice", Filename: "c.yaml"},
		{Name: "dup", Filename: "c.yaml"},
	}, func(name string, locations []string) {
		reported[name] = locations
	})

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
	assert.Equal(t, map[string][]string{
		"dup":   {"a.yaml", "b.yaml", "c.yaml"},
		"twice": {"b.yaml", "c.yaml"},
	}, reported)
	assert.Contains(t, err.Error(), "[dup twice]")
}

func TestRemoteLocation(t *testing.T) {
	m := &Canonical{Name: "x", ID: 12, Origin: Remote}
	assert.Equal(t, "datadog:12", m.Location())
}

func TestNilCollection(t *testing.T) {
	var c *Collection
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Names())
	assert.False(t, c.Has("x"))
}

func TestRenderSequence(t *testing.T) {
	out, err := Renderer{}.Render([]any{
		map[string]any{"name": "a", "query": "q1"},
		map[string]any{"name": "b", "tags": []any{"team:ops"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "\n- name: a\n  query: q1\n\n- name: b\n  tags:\n    - team:ops\n", out)
}

func TestRenderMultilineAndWidth(t *testing.T) {
	out, err := Renderer{}.Render(map[string]any{"message": "line one\nline two"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "message: |-\n"), out)

	long := strings.Repeat("word ", 20) + "end"
	out, err = Renderer{Width: 40}.Render(map[string]any{"query": long})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "query: >-"), out)

	out, err = Renderer{}.Render(map[string]any{"query": "short"})
	require.NoError(t, err)
	assert.Equal(t, "query: short\n", out)
}

func TestNormalize(t *testing.T) {
	got := Normalize(map[any]any{
		"a": 1,
		"b": []any{uint8(2), float32(2.5), 3.0},
		7:   map[string]any{"c": int32(4)},
	})
	assert.Equal(t, map[string]any{
		"a": int64(1),
		"b": []any{int64(2), 2.5, int64(3)},
		"7": map[string]any{"c": int64(4)},
	}, got)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(map[string]any{}))
	assert.False(t, Truthy(int64(0)))
	assert.False(t, Truthy(""))
	assert.True(t, Truthy(map[string]any{"*": nil}))
	assert.True(t, Truthy([]any{"x"}))
	assert.True(t, Truthy(true))
}
