package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/client"
	"github.com/TimurManjosov/cclengine/internal/conformance"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat accepts table, json or yaml.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// PrintConfigurations outputs configuration summaries.
func PrintConfigurations(w io.Writer, list *client.ConfigurationList, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, list)
	case FormatYAML:
		return printYAML(w, list)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Key", "Identifier", "Valid From", "Valid To", "Active", "Default", "Functions")
		for _, c := range list.Configurations {
			table.Append(
				c.Key,
				c.Identifier,
				c.ValidFrom,
				c.ValidTo,
				yesNo(c.Active),
				yesNo(c.Default),
				truncate(strings.Join(c.Functions, ", "), 40),
			)
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintValue outputs an evaluation result. Tables have no shape for
// arbitrary values, so the table format prints indented JSON.
func PrintValue(w io.Writer, v any, format OutputFormat) error {
	switch format {
	case FormatJSON, FormatTable:
		return printJSON(w, v)
	case FormatYAML:
		return printYAML(w, v)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintWalletInfo outputs a wallet evaluation. The table lists the
// rendered texts, the other formats the full result.
func PrintWalletInfo(w io.Writer, res *client.WalletInfoResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, res)
	case FormatYAML:
		return printYAML(w, res)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Field", "Value")
		table.Append("configuration", res.Configuration)
		if info, ok := res.WalletInfo.(map[string]any); ok {
			for _, key := range []string{"admissionState", "vaccinationState"} {
				if state, ok := info[key].(map[string]any); ok {
					table.Append(key, fmt.Sprint(state["value"]))
				}
			}
		}
		keys := make([]string, 0, len(res.Texts))
		for k := range res.Texts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			table.Append(k, res.Texts[k])
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

type reportCase struct {
	Title    string   `json:"title"`
	Function string   `json:"function"`
	Passed   bool     `json:"passed"`
	Diffs    []string `json:"diffs,omitempty"`
	Error    string   `json:"error,omitempty"`
	Millis   int64    `json:"durationMs"`
}

type reportSummary struct {
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []reportCase `json:"cases"`
}

// PrintReport outputs a conformance report. With failedOnly passing
// cases are left out of the listing but still counted.
func PrintReport(w io.Writer, rep *conformance.Report, format OutputFormat, failedOnly bool) error {
	sum := reportSummary{Passed: rep.Passed, Failed: rep.Failed, Cases: []reportCase{}}
	for _, r := range rep.Results {
		if failedOnly && r.Passed {
			continue
		}
		c := reportCase{Title: r.Title, Function: r.Function, Passed: r.Passed, Diffs: r.Diffs, Millis: r.Duration.Milliseconds()}
		if r.Err != nil {
			c.Error = r.Err.Error()
		}
		sum.Cases = append(sum.Cases, c)
	}

	switch format {
	case FormatJSON:
		return printJSON(w, sum)
	case FormatYAML:
		return printYAML(w, sum)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("#", "Title", "Result", "Detail")
		for i, c := range sum.Cases {
			result, detail := "PASS", ""
			switch {
			case c.Error != "":
				result, detail = "ERROR", c.Error
			case !c.Passed:
				result, detail = "FAIL", strings.Join(c.Diffs, " ")
			}
			table.Append(fmt.Sprint(i+1), truncate(c.Title, 60), result, truncate(detail, 60))
		}
		if err := table.Render(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%d passed, %d failed\n", sum.Passed, sum.Failed)
		return err
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// printYAML goes through JSON first so field names match the JSON output.
func printYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(tree)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
