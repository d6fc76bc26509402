package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"textadapt/pkg/readability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "readability",
		Short:         "Offline readability analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.AddCommand(analyzeCmd(), compareCmd())
	return root
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Compute metrics for a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			m := readability.Analyze(text)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Metric", "Value"})
			for _, row := range metricRows(m) {
				tw.AppendRow(table.Row{row.name, row.value})
			}
			tw.Render()
			return nil
		},
	}
}

func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <original> <simplified>",
		Short: "Compare an original text with its simplified version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" && args[1] == "-" {
				return fmt.Errorf("only one input can be read from stdin")
			}
			original, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			simplified, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			report := readability.Compare(original, simplified)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Metric", "Original", "Simplified"})
			orig, simp := metricRows(report.Original), metricRows(report.Simplified)
			for i := range orig {
				tw.AppendRow(table.Row{orig[i].name, orig[i].value, simp[i].value})
			}
			tw.AppendSeparator()
			tw.AppendRow(table.Row{"charCountReduction", percent(report.CharCountReduction), ""})
			tw.AppendRow(table.Row{"wordCountReduction", percent(report.WordCountReduction), ""})
			tw.AppendRow(table.Row{"stopwordReductionCount", percent(report.StopwordReductionCount), ""})
			tw.AppendRow(table.Row{"readabilityImprovement", percent(report.ReadabilityImprovement), ""})
			tw.Render()
			fmt.Fprintln(cmd.OutOrStdout(), report.Summary)
			return nil
		},
	}
}

type metricRow struct {
	name  string
	value string
}

func metricRows(m readability.Metrics) []metricRow {
	return []metricRow{
		{"charCount", fmt.Sprint(m.CharCount)},
		{"wordCount", fmt.Sprint(m.WordCount)},
		{"sentenceCount", fmt.Sprint(m.SentenceCount)},
		{"syllableCount", fmt.Sprint(m.SyllableCount)},
		{"stopwordCount", fmt.Sprint(m.StopwordCount)},
		{"avgSentenceLength", fmt.Sprintf("%.2f", m.AvgSentenceLength)},
		{"avgWordSyllableLength", fmt.Sprintf("%.2f", m.AvgWordSyllableLength)},
		{"readabilityScore", fmt.Sprintf("%.2f", m.ReadabilityScore)},
	}
}

func percent(ratio float64) string {
	return fmt.Sprintf("%d%%", readability.Percent(ratio))
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
