package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect validation run history",
	Long:  "Commands for listing, viewing, and tracing stored validation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List validation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		producerID, _ := cmd.Flags().GetString("producer")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status:     model.RunStatus(status),
			ProducerID: producerID,
			Limit:      limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
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
			return eris.Wrapf(err, "runs show %s", args[0])
		}

		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal run")
		}
		fmt.Println(string(out))
		return nil
	},
}

// -- runs history --

var runsHistoryCmd = &cobra.Command{
	Use:   "history <producer> <parser>",
	Short: "Show score history for one pair across runs",
	Args:  cobra.ExactArgs(2),
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

		limit, _ := cmd.Flags().GetInt("limit")
		key := model.PairKey{ProducerID: args[0], ParserID: args[1]}

		history, err := st.PairHistory(ctx, key, limit)
		if err != nil {
			return eris.Wrapf(err, "runs history %s", key)
		}

		if len(history) == 0 {
			fmt.Fprintf(os.Stderr, "No history for %s.\n", key)
			return nil
		}

		formatPairHistory(os.Stdout, key, history)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tPAIRS\tMEAN\tFAILED\tCREATED")
	for _, r := range runs {
		mean, failed := "-", "-"
		if r.Matrix != nil {
			mean = strconv.FormatFloat(r.Matrix.Stats.MeanScore, 'f', 1, 64)
			failed = strconv.Itoa(r.Matrix.Stats.Failed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Status, len(r.Pairs), mean, failed,
			r.CreatedAt.Format(time.RFC3339),
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatPairHistory(w io.Writer, key model.PairKey, history []model.PairResult) {
	fmt.Fprintf(w, "History for %s (newest first):\n", key)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSCORE\tGRADE\tREASON\tDISPATCHED\tPARSED")
	for _, p := range history {
		score, grade, reason := "-", "-", ""
		if p.Report != nil {
			score = strconv.FormatFloat(p.Report.Score, 'f', 1, 64)
			grade = string(p.Report.Grade)
			reason = string(p.Report.Reason)
		} else if p.Status == model.StatusFailed {
			reason = p.FailReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			p.Status, score, grade, reason, p.Dispatched, p.ParsedCount)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued|running|complete|failed)")
	runsListCmd.Flags().String("producer", "", "filter to runs covering the given producer")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsHistoryCmd.Flags().Int("limit", 10, "maximum history entries")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsHistoryCmd)
	rootCmd.AddCommand(runsCmd)
}
