package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/plugin"
)

func sampleTemplate() plugin.Template {
	return plugin.Template{
		PluginID:       "plugin_1",
		Description:    "version regression check",
		SourceTSG:      "Distributed_System_Low_Availability",
		Language:       "sql",
		RequiredParams: []string{"start_time", "end_time", "service_name"},
		Body:           "SELECT * FROM api_gateway_logs WHERE service_name = '{{.service_name}}' AND ts BETWEEN '{{.start_time}}' AND '{{.end_time}}'",
	}
}

func TestExecuteRendersTemplateWithAllParams(t *testing.T) {
	tmpl := sampleTemplate()
	out, err := tmpl.Execute(map[string]any{
		"start_time":   "2026-07-29T08:00:00Z",
		"end_time":     "2026-07-29T09:00:00Z",
		"service_name": "checkout",
	})
	require.NoError(t, err)
	require.Contains(t, out, "service_name = 'checkout'")
	require.Contains(t, out, "2026-07-29 08:00:00")
	require.False(t, plugin.IsMissingParam(out))
}

func TestExecuteReportsMissingParam(t *testing.T) {
	tmpl := sampleTemplate()
	out, err := tmpl.Execute(map[string]any{"start_time": "x", "end_time": "y"})
	require.NoError(t, err)
	require.True(t, plugin.IsMissingParam(out))
	require.Contains(t, out, "service_name")
}

func TestToolNameAndDescription(t *testing.T) {
	tmpl := sampleTemplate()
	require.Equal(t, "plugin_1_tool", tmpl.ToolName())
	require.Contains(t, tmpl.FormattedDescription(), "plugin_1")
	require.Contains(t, tmpl.FormattedDescription(), "sql")
}

func TestIsMissingParamFalseForOrdinaryObservation(t *testing.T) {
	require.False(t, plugin.IsMissingParam("SQL query snippet stored with ID: abc123"))
}
