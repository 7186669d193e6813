package memstore

import (
	"fmt"
	"strings"
)

// generateSummary builds the stored summary for an oversized payload: a
// line/char count, a tabular-data guess based on delimiter frequency, and
// a head sample, optionally followed by a tail sample for long text.
func generateSummary(text string) string {
	lines := strings.Split(text, "\n")
	total := len(lines)

	var b strings.Builder
	fmt.Fprintf(&b, "Total lines: %d, Characters: %d\n\n", total, len(text))

	delim := detectDelimiter(text)
	if delim != "" {
		cols := 0
		count := 0
		for _, l := range lines {
			if count >= 20 {
				break
			}
			if strings.TrimSpace(l) == "" {
				continue
			}
			count++
			if n := len(strings.Split(l, delim)); n > cols {
				cols = n
			}
		}
		if cols > 0 {
			fmt.Fprintf(&b, "Appears to be tabular data with approximately %d columns.\n\n", cols)
		}
	}

	if total > 0 {
		n := min(10, total)
		fmt.Fprintf(&b, "First %d lines:\n%s\n\n", n, strings.Join(lines[:n], "\n"))
	}
	if total > 20 {
		fmt.Fprintf(&b, "Last 5 lines:\n%s", strings.Join(lines[total-5:], "\n"))
	}
	return b.String()
}

func detectDelimiter(text string) string {
	switch {
	case strings.Contains(text, "\t"):
		return "\t"
	case strings.Contains(text, "|"):
		return "|"
	case strings.Contains(text, ","):
		return ","
	default:
		return ""
	}
}

// tableSummary mirrors _generate_dataframe_summary, operating over a slice
// of row maps instead of a pandas DataFrame.
func tableSummary(rows []map[string]any, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table shape: [%d, %d], Columns: %v\n\n", len(rows), len(columns), columns)

	if len(rows) <= 3 {
		fmt.Fprintf(&b, "Table has fewer than 4 rows, showing all:\n%s\n", renderRows(rows, columns))
		return b.String()
	}
	fmt.Fprintf(&b, "First 2 rows and last 1 row of table (total %d rows):\n", len(rows))
	fmt.Fprintf(&b, "%s\n...(truncated)...\n%s\n", renderRows(rows[:2], columns), renderRows(rows[len(rows)-1:], columns))
	return b.String()
}

func renderRows(rows []map[string]any, columns []string) string {
	var lines []string
	for _, row := range rows {
		var cells []string
		for _, col := range columns {
			cells = append(cells, fmt.Sprintf("%v", row[col]))
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	return strings.Join(lines, "\n")
}
