package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/parity-labs/parity-cli/internal/model"
)

var (
	reportFormat string
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Export a stored validation matrix",
	Long:  "Renders the matrix of a finished run as JSON, YAML, or an XLSX workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "report %s", args[0])
		}
		if run.Matrix == nil {
			return eris.Errorf("run %s has no matrix yet (status %s)", run.ID, run.Status)
		}

		switch strings.ToLower(reportFormat) {
		case "json":
			return writeEncoded(run.Matrix, reportOut, func(m *model.ValidationMatrix) ([]byte, error) {
				return json.MarshalIndent(m, "", "  ")
			})
		case "yaml":
			return writeEncoded(run.Matrix, reportOut, func(m *model.ValidationMatrix) ([]byte, error) {
			return yaml.Marshal(m)
		})
		case "xlsx":
			if reportOut == "" {
				return eris.New("--out is required for xlsx output")
			}
			return writeXLSX(run.Matrix, reportOut)
		default:
			return eris.Errorf("unsupported format %q (want json, yaml, or xlsx)", reportFormat)
		}
	},
}

func writeEncoded(m *model.ValidationMatrix, out string, marshal func(*model.ValidationMatrix) ([]byte, error)) error {
	data, err := marshal(m)
	if err != nil {
		return eris.Wrap(err, "report: marshal matrix")
	}
	if out == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return eris.Wrap(err, "report: write file")
	}
	return nil
}

// writeXLSX renders the matrix as a two-sheet workbook: a summary sheet with
// aggregate stats and a pairs sheet with one row per pair result.
func writeXLSX(m *model.ValidationMatrix, path string) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addKV := func(key string, value any) {
		row := summary.AddRow()
		row.AddCell().Value = key
		switch v := value.(type) {
		case string:
			row.AddCell().Value = v
		case int:
			row.AddCell().SetInt(v)
		case float64:
			row.AddCell().SetFloat(v)
		}
	}
	addKV("Matrix ID", m.ID)
	addKV("Started", m.StartedAt.Format("2006-01-02 15:04:05"))
	addKV("Finished", m.FinishedAt.Format("2006-01-02 15:04:05"))
	addKV("Pairs", m.Stats.Pairs)
	addKV("Succeeded", m.Stats.Succeeded)
	addKV("Failed", m.Stats.Failed)
	addKV("Timed out", m.Stats.TimedOut)
	addKV("No parse observed", m.Stats.NoParseObserved)
	addKV("Mean score", m.Stats.MeanScore)
	addKV("Median score", m.Stats.MedianScore)
	addKV("Stddev score", m.Stats.StdDevScore)

	pairs, err := f.AddSheet("Pairs")
	if err != nil {
		return eris.Wrap(err, "report: add pairs sheet")
	}
	header := pairs.AddRow()
	for _, h := range []string{
		"Producer", "Parser", "Status", "Score", "Grade", "Reason",
		"Fail reason", "Matched", "Missing", "Extra", "Required missing",
		"Dispatched", "Parsed", "Duration ms", "Recommendations",
	} {
		header.AddCell().Value = h
	}

	for _, p := range m.Pairs {
		row := pairs.AddRow()
		row.AddCell().Value = p.Key.ProducerID
		row.AddCell().Value = p.Key.ParserID
		row.AddCell().Value = string(p.Status)

		if p.Report != nil {
			row.AddCell().SetFloat(p.Report.Score)
			row.AddCell().Value = string(p.Report.Grade)
			row.AddCell().Value = string(p.Report.Reason)
		} else {
			row.AddCell().Value = ""
			row.AddCell().Value = ""
			row.AddCell().Value = ""
		}
		row.AddCell().Value = p.FailReason
		row.AddCell().Value = strings.Join(p.Matched, ", ")
		row.AddCell().Value = strings.Join(p.Missing, ", ")
		row.AddCell().Value = strings.Join(p.Extra, ", ")
		if p.Report != nil {
			row.AddCell().Value = strings.Join(p.Report.RequiredMissing, ", ")
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().SetInt(p.Dispatched)
		row.AddCell().SetInt(p.ParsedCount)
		row.AddCell().SetInt(int(p.DurationMS))
		row.AddCell().Value = formatSuggestions(p.Report)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save xlsx")
	}
	return nil
}

func formatSuggestions(report *model.ComplianceReport) string {
	if report == nil || len(report.Recommendations) == 0 {
		return ""
	}
	parts := make([]string, 0, len(report.Recommendations))
	for _, s := range report.Recommendations {
		parts = append(parts, s.Code+": "+s.Summary)
	}
	return strings.Join(parts, "; ")
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "json", "output format (json|yaml|xlsx)")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output file (stdout for json/yaml when empty)")
	rootCmd.AddCommand(reportCmd)
}
