package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// builtinOps is the seed operation set available without any compiled
// module on disk: numeric, tabular, datetime, statistics. Each reads a JSON
// object from stdin and writes its result to stdout; malformed input goes
// to stderr, which the code interpreter treats as a failed attempt.
var builtinOps = map[string]func(stdin []byte) (stdout, stderr string){
	"numeric":    runNumeric,
	"tabular":    runTabular,
	"datetime":   runDatetime,
	"statistics": runStatistics,
}

// BuiltinOperations lists the seed operation names, sorted, for prompts and
// error messages.
func BuiltinOperations() []string {
	names := make([]string, 0, len(builtinOps))
	for name := range builtinOps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeStdin(stdin []byte, dst any) error {
	if len(stdin) == 0 {
		return fmt.Errorf("empty input")
	}
	return json.Unmarshal(stdin, dst)
}

func writeResult(v any) (string, string) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Sprintf("encode result: %s", err)
	}
	return string(b) + "\n", ""
}

// runNumeric applies a single reduction over a slice of numbers:
// {"values": [..], "op": "sum"|"mean"|"min"|"max"|"count"}.
func runNumeric(stdin []byte) (string, string) {
	var in struct {
		Values []float64 `json:"values"`
		Op     string    `json:"op"`
	}
	if err := decodeStdin(stdin, &in); err != nil {
		return "", fmt.Sprintf("numeric: %s", err)
	}
	if in.Op == "count" {
		return writeResult(map[string]any{"op": "count", "result": len(in.Values)})
	}
	if len(in.Values) == 0 {
		return "", "numeric: 'values' must be a non-empty array of numbers"
	}
	var result float64
	switch in.Op {
	case "sum", "mean":
		for _, v := range in.Values {
			result += v
		}
		if in.Op == "mean" {
			result /= float64(len(in.Values))
		}
	case "min":
		result = in.Values[0]
		for _, v := range in.Values[1:] {
			result = math.Min(result, v)
		}
	case "max":
		result = in.Values[0]
		for _, v := range in.Values[1:] {
			result = math.Max(result, v)
		}
	default:
		return "", fmt.Sprintf("numeric: unknown op %q (want sum, mean, min, max, or count)", in.Op)
	}
	return writeResult(map[string]any{"op": in.Op, "result": result})
}

// runTabular inspects a slice of row objects:
// {"rows": [{..}], "op": "count"|"head"|"distinct", "column": .., "n": ..}.
func runTabular(stdin []byte) (string, string) {
	var in struct {
		Rows   []map[string]any `json:"rows"`
		Op     string           `json:"op"`
		Column string           `json:"column"`
		N      int              `json:"n"`
	}
	if err := decodeStdin(stdin, &in); err != nil {
		return "", fmt.Sprintf("tabular: %s", err)
	}
	switch in.Op {
	case "count":
		return writeResult(map[string]any{"op": "count", "result": len(in.Rows)})
	case "head":
		n := in.N
		if n <= 0 {
			n = 5
		}
		if n > len(in.Rows) {
			n = len(in.Rows)
		}
		return writeResult(map[string]any{"op": "head", "result": in.Rows[:n]})
	case "distinct":
		if in.Column == "" {
			return "", "tabular: op 'distinct' requires 'column'"
		}
		seen := map[string]bool{}
		var values []string
		for _, row := range in.Rows {
			s := fmt.Sprintf("%v", row[in.Column])
			if !seen[s] {
				seen[s] = true
				values = append(values, s)
			}
		}
		sort.Strings(values)
		return writeResult(map[string]any{"op": "distinct", "column": in.Column, "result": values})
	default:
		return "", fmt.Sprintf("tabular: unknown op %q (want count, head, or distinct)", in.Op)
	}
}

// runDatetime parses or diffs RFC 3339 style timestamps:
// {"op": "parse", "value": ..} or {"op": "duration", "start": .., "end": ..}.
func runDatetime(stdin []byte) (string, string) {
	var in struct {
		Op    string `json:"op"`
		Value string `json:"value"`
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := decodeStdin(stdin, &in); err != nil {
		return "", fmt.Sprintf("datetime: %s", err)
	}
	parse := func(s string) (time.Time, error) {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}
	switch in.Op {
	case "parse":
		ts, err := parse(in.Value)
		if err != nil {
			return "", fmt.Sprintf("datetime: %s", err)
		}
		return writeResult(map[string]any{"op": "parse", "unix": ts.Unix(), "weekday": ts.Weekday().String(), "rfc3339": ts.UTC().Format(time.RFC3339)})
	case "duration":
		start, err := parse(in.Start)
		if err != nil {
			return "", fmt.Sprintf("datetime: %s", err)
		}
		end, err := parse(in.End)
		if err != nil {
			return "", fmt.Sprintf("datetime: %s", err)
		}
		d := end.Sub(start)
		return writeResult(map[string]any{"op": "duration", "seconds": d.Seconds(), "human": d.String()})
	default:
		return "", fmt.Sprintf("datetime: unknown op %q (want parse or duration)", in.Op)
	}
}

// runStatistics summarizes a slice of numbers: {"values": [..]} yields
// count, mean, median, stddev, min, max.
func runStatistics(stdin []byte) (string, string) {
	var in struct {
		Values []float64 `json:"values"`
	}
	if err := decodeStdin(stdin, &in); err != nil {
		return "", fmt.Sprintf("statistics: %s", err)
	}
	if len(in.Values) == 0 {
		return "", "statistics: 'values' must be a non-empty array of numbers"
	}
	sorted := append([]float64(nil), in.Values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var variance float64
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(sorted))

	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	return writeResult(map[string]any{
		"count":  len(sorted),
		"mean":   mean,
		"median": median,
		"stddev": math.Sqrt(variance),
		"min":    sorted[0],
		"max":    sorted[len(sorted)-1],
	})
}

// describeOps renders the operation list for error messages.
func describeOps() string {
	return strings.Join(BuiltinOperations(), ", ")
}
