package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// outputFormat is set by the root command's -o flag.
// Supported values: "table" (default), "json", "yaml".
var outputFormat string

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

// printTable writes tabular data using aligned columns.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, h)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

// printJSON writes the value as pretty-printed JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML writes the value as YAML.
func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printOutput dispatches to JSON, YAML, or table output based on outputFormat.
// v is what json and yaml render; rows is what the table renders.
func printOutput(v interface{}, headers []string, rows [][]string) error {
	switch outputFormat {
	case "json":
		if err := printJSON(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case "yaml":
		if err := printYAML(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
	case "table", "":
		printTable(headers, rows)
	default:
		return fmt.Errorf("unknown output format %q (table|json|yaml)", outputFormat)
	}
	return nil
}

// formatAge returns a human-readable duration string relative to the given
// time, such as "5s", "3m", "2h", "4d". Returns "<unknown>" for zero times.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "<unknown>"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// formatScore renders a compatibility score, green at or above threshold.
func formatScore(score, threshold float64) string {
	s := strconv.FormatFloat(score, 'f', 2, 64)
	switch {
	case score >= threshold:
		return color.GreenString(s)
	case score >= threshold-15:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorPhase returns a colored string for known phases.
func colorPhase(phase string) string {
	switch phase {
	case "Active", "Available":
		return color.GreenString(phase)
	case "Maintenance":
		return color.YellowString(phase)
	case "Inactive":
		return color.HiBlackString(phase)
	case "Pending":
		return color.WhiteString(phase)
	default:
		return phase
	}
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
