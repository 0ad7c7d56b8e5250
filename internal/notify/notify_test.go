package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogpushhq/dogpush/internal/errs"
)

var directory = Directory{
	"ops": {
		"warning":  {"@slack-ops"},
		"alert":    {"@pagerduty-ops", "@slack-ops"},
		"CRITICAL": {"@pagerduty-ops"},
		"WARNING":  {"@slack-ops"},
	},
	"db": {
		"alert": {"@pagerduty-db", "@slack-ops"},
	},
}

func TestConditionalSingleTeam(t *testing.T) {
	body, err := NewConditional(directory).Build([]string{"ops"}, "")
	require.NoError(t, err)

	want := "{{#is_warning}}\n@slack-ops\n{{/is_warning}}\n" +
		"{{#is_alert}}\n@pagerduty-ops\n@slack-ops\n{{/is_alert}}\n" +
		"{{#is_recovery}}\n@slack-ops\n@pagerduty-ops\n{{/is_recovery}}"
	assert.Equal(t, want, body)
}

func TestConditionalDeduplicatesAcrossTeams(t *testing.T) {
	body, err := NewConditional(directory).Build([]string{"db", "ops"}, "")
	require.NoError(t, err)

	want := "{{#is_warning}}\n@slack-ops\n{{/is_warning}}\n" +
		"{{#is_alert}}\n@pagerduty-db\n@slack-ops\n@pagerduty-ops\n{{/is_alert}}\n" +
		"{{#is_recovery}}\n@slack-ops\n@pagerduty-db\n@pagerduty-ops\n{{/is_recovery}}"
	assert.Equal(t, want, body)
}

func TestConditionalMissingCategoryIsTolerated(t *testing.T) {
	body, err := NewConditional(Directory{"quiet": {}}).Build([]string{"quiet"}, "")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestUnknownTeam(t *testing.T) {
	_, err := NewConditional(directory).Build([]string{"nobody"}, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = NewSeverityLine(directory).Build([]string{"nobody"}, "")
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestSeverityLine(t *testing.T) {
	body, err := NewSeverityLine(directory).Build([]string{"ops"}, "")
	require.NoError(t, err)
	assert.Equal(t, "@pagerduty-ops", body)

	body, err = NewSeverityLine(directory).Build([]string{"ops"}, "WARNING")
	require.NoError(t, err)
	assert.Equal(t, "@slack-ops", body)

	_, err = NewSeverityLine(directory).Build([]string{"db"}, "CRITICAL")
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestValidSeverity(t *testing.T) {
	assert.True(t, ValidSeverity("INFO"))
	assert.False(t, ValidSeverity("info"))
}
