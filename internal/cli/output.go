package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
)

// colorize returns the ANSI code unless color is disabled.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
)

// printResult writes res as indented JSON or as a message followed by the
// data's fields in key order.
func printResult(w io.Writer, res dispatch.Result) error {
	if flagOutput == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.Success {
		fmt.Fprintf(w, "%sOK%s %s\n", colorize(ansiGreen), colorize(ansiReset), res.Message)
	} else {
		fmt.Fprintf(w, "%sFAILED%s %s\n", colorize(ansiRed), colorize(ansiReset), firstNonEmpty(res.Message, res.Error))
		if res.Message != "" && res.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", res.Error)
		}
	}
	for _, line := range dataLines(res.Data, "  ") {
		fmt.Fprintln(w, line)
	}
	return nil
}

// dataLines flattens data into "key: value" lines.
func dataLines(data any, indent string) []string {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return []string{indent + fmt.Sprintf("%v", data)}
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return []string{indent + string(raw)}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var lines []string
	for _, k := range keys {
		switch v := fields[k].(type) {
		case map[string]any:
			lines = append(lines, indent+k+":")
			lines = append(lines, dataLines(v, indent+"  ")...)
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				b, _ := json.Marshal(item)
				parts = append(parts, string(b))
			}
			lines = append(lines, fmt.Sprintf("%s%s: [%s]", indent, k, strings.Join(parts, ", ")))
		default:
			lines = append(lines, fmt.Sprintf("%s%s: %v", indent, k, v))
		}
	}
	return lines
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
