package mute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-13 is a Tuesday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.UTC)
}

func TestEvalFields(t *testing.T) {
	tue := at(13, 20, 15)
	cases := []struct {
		src  string
		want bool
	}{
		{"now.hour == 20", true},
		{"hour == 20 and minute == 15", true},
		{"now.weekday() == 1", true},
		{"now.isoweekday() == 2", true},
		{"weekday in (5, 6)", false},
		{"weekday not in [5, 6]", true},
		{"9 <= now.hour < 21", true},
		{"9 <= now.hour < 20", false},
		{"now.month == 10 && day == 13", true},
		{"year == 2026 || false", true},
		{"not (hour > 8)", false},
		{"!(hour > 21)", true},
		{"yearday == 286", true},
		{"second == 0", true},
		{"(hour > 8) == True", true},
		{"hour != 20 or minute >= 15", true},
	}
	for _, tc := range cases {
		expr, err := Parse(tc.src)
		require.NoError(t, err, tc.src)
		assert.Equal(t, tc.want, expr.Eval(tue), tc.src)
		assert.Equal(t, tc.src, expr.String())
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"hour",
		"now.hours > 3",
		"__import__('os')",
		"hour > ",
		"hour > 3 and",
		"hour and minute",
		"not hour",
		"true < false",
		"hour == true",
		"(hour > 3",
		"hour in ()",
		"hour in (1 2)",
		"true in (1)",
		"hour > 3 extra",
		"hour $ 3",
		"now hour",
	} {
		_, err := Parse(src)
		assert.Error(t, err, src)
	}
}

func TestWeekdayMatchesCalendar(t *testing.T) {
	expr, err := Parse("weekday == 6")
	require.NoError(t, err)
	assert.True(t, expr.Eval(at(18, 0, 0)), "Sunday")
	assert.False(t, expr.Eval(at(17, 0, 0)), "Saturday")
}
