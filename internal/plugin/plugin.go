// Package plugin implements the Plugin Adapter component: a TSG-scoped
// catalog of parameterized SQL templates. Each plugin is a Go
// text/template plus a required-parameter list; there is no
// plugin-authoring DSL, plugins are compiled ahead of time.
package plugin

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// isoTimestamp matches a T/Z-delimited ISO-8601 timestamp so it can be
// rewritten to the space-delimited form the underlying SQL dialect expects
//.
var isoTimestamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2}:\d{2}:\d{2}(?:\.\d+)?)Z?$`)

// normalizeTimestamp rewrites a single ISO-8601 T/Z-delimited value to
// space-delimited form; non-matching values pass through unchanged.
func normalizeTimestamp(v string) string {
	m := isoTimestamp.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	return m[1] + " " + m[2]
}

// normalizeTimestamps returns a copy of params with every string value rewritten,
// applied before template substitution.
func normalizeTimestamps(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = normalizeTimestamp(s)
			continue
		}
		out[k] = v
	}
	return out
}

// MissingParamPrefix is the fixed string prefix a plugin's Execute returns
// when a required parameter is absent. The worker's deferred
// sql_query_tool dispatch checks this prefix before treating a plugin's
// output as a snippet id.
const MissingParamPrefix = "Missing required parameter:"

// Template is one TSG plugin: a named SQL (or other language) template with
// a fixed set of required parameters.
type Template struct {
	PluginID       string
	Description    string
	SourceTSG      string
	Language       string
	RequiredParams []string
	Body           string
}

// Execute renders the template against params, returning the rendered
// snippet, or a "Missing required parameter: ..." string if a required
// parameter is absent. Never a Go error: plugins speak a string-only
// protocol the model observes directly.
func (t Template) Execute(params map[string]any) (string, error) {
	for _, name := range t.RequiredParams {
		if _, ok := params[name]; !ok {
			return fmt.Sprintf("%s %s. You should provide all the params: %v", MissingParamPrefix, name, t.RequiredParams), nil
		}
	}

	tmpl, err := template.New(t.PluginID).Parse(t.Body)
	if err != nil {
		return "", fmt.Errorf("parse plugin template %s: %w", t.PluginID, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, normalizeTimestamps(params)); err != nil {
		return "", fmt.Errorf("render plugin template %s: %w", t.PluginID, err)
	}
	return buf.String(), nil
}

// FormattedDescription renders the human-readable line used in a worker's
// tools-available prompt section.
func (t Template) FormattedDescription() string {
	return fmt.Sprintf("%s: %s [Language: %s]", t.PluginID, t.Description, t.Language)
}

// ToolName is the registry name a plugin is exposed under.
func (t Template) ToolName() string {
	return t.PluginID + "_tool"
}

// IsMissingParam reports whether an observation string is a
// missing-required-parameter message rather than a rendered snippet.
func IsMissingParam(observation string) bool {
	return strings.HasPrefix(observation, MissingParamPrefix)
}
