// Package ident mints the identifiers used throughout a session: UUIDs for
// records, agents, executors, and snippets, and the timestamp+suffix form
// used for session IDs.
package ident

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// New mints a UUID string, used for record/agent/executor/snippet IDs.
func New() string {
	return uuid.NewString()
}

// NewSession mints a session ID of the form "<RFC3339-compact
// timestamp>-<short suffix>", matching the data model's "timestamp + random
// suffix" contract. The suffix uses shortuuid so the full ID stays short
// enough to show up in logs and trace directory names without truncation.
func NewSession(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405"), shortuuid.New()[:8])
}
