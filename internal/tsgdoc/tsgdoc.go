// Package tsgdoc parses a TSG markdown document: it rewrites embedded
// plugin markers to the placeholder text workers see, extracts the plugin
// catalog marker, and walks the heading structure goldmark exposes so
// callers can order context assembly by step heading. The TSG_PLUGINS
// marker is extracted with a plain regexp since goldmark does not surface
// HTML comments as a distinct AST node worth round-tripping through.
package tsgdoc

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// pluginTag matches a <PLUGIN_N>...</PLUGIN_N> region, non-greedy and
// spanning newlines, so multi-line plugin bodies are captured whole.
var pluginTag = regexp.MustCompile(`(?s)<PLUGIN_(\d+)>.*?</PLUGIN_\d+>`)

// pluginsMarker matches the <!-- TSG_PLUGINS:name --> line.
var pluginsMarker = regexp.MustCompile(`<!--\s*TSG_PLUGINS:(\S+)\s*-->`)

// Heading is one heading in document order, used to keep predecessor
// context assembly) aligned with the TSG's own step order.
type Heading struct {
	Level int
	Text  string
}

// Document is a parsed TSG ready for storage under the "tsg_content" key.
type Document struct {
	// Body is the markdown text with every <PLUGIN_N>...</PLUGIN_N> region
	// rewritten to "<please execute query plugin_N>".
	Body string
	// Headings lists every heading in document order.
	Headings []Heading
	// PluginsTSG is the name from a <!-- TSG_PLUGINS:name --> marker, or ""
	// if the document carries none — workers then pre-load no plugin tools.
	PluginsTSG string
}

// Parse rewrites plugin tags, extracts the plugins marker, and walks
// heading structure.
func Parse(raw []byte) (Document, error) {
	rewritten := pluginTag.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := pluginTag.FindSubmatch(m)
		return []byte(fmt.Sprintf("<please execute query plugin_%s>", sub[1]))
	})

	var pluginsTSG string
	if m := pluginsMarker.FindSubmatch(rewritten); m != nil {
		pluginsTSG = string(m[1])
	}

	root := goldmark.New().Parser().Parse(text.NewReader(rewritten))
	var headings []Heading
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headings = append(headings, Heading{Level: h.Level, Text: headingText(h, rewritten)})
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("walk tsg headings: %w", err)
	}

	return Document{Body: string(rewritten), Headings: headings, PluginsTSG: pluginsTSG}, nil
}

// headingText concatenates a heading node's direct text children, since
// goldmark does not expose a single Text() accessor on ast.Node.
func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}
