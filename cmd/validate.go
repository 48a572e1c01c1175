package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/model"
)

var (
	validatePairsPath string
	validateNoSave    bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <producer> <parser>",
	Short: "Validate a single producer/parser pair",
	Long:  "Dispatches a tagged event batch for one pair, waits for the parser's output, and prints the scored compliance report.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "validate", validatePairsPath)
		if err != nil {
			return err
		}
		defer env.Close()

		key := model.PairKey{ProducerID: args[0], ParserID: args[1]}

		started := time.Now().UTC()
		result := env.Engine.ValidatePair(ctx, key)
		matrix := model.BuildMatrix(key.String(), []model.PairResult{result}, started, time.Now().UTC())

		if !validateNoSave {
			run, sErr := env.Store.CreateRun(ctx, []model.PairKey{key})
			if sErr != nil {
				return sErr
			}
			if sErr := env.Store.SaveMatrix(ctx, run.ID, matrix); sErr != nil {
				return sErr
			}
			zap.L().Info("validation saved", zap.String("run_id", run.ID))
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))

		if result.Status == model.StatusFailed {
			return eris.Errorf("pair %s failed: %s", key, result.FailReason)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validatePairsPath, "pairs", "pairs.yaml", "validation plan file")
	validateCmd.Flags().BoolVar(&validateNoSave, "no-save", false, "skip persisting the result")
	rootCmd.AddCommand(validateCmd)
}

// printMatrixSummary renders a one-line-per-pair overview to stderr so stdout
// stays machine-parseable.
func printMatrixSummary(matrix *model.ValidationMatrix) {
	fmt.Fprintf(os.Stderr, "matrix %s: %d pair(s), %d failed, %d timed out, mean score %.1f\n",
		matrix.ID, matrix.Stats.Pairs, matrix.Stats.Failed, matrix.Stats.TimedOut, matrix.Stats.MeanScore)
	for _, p := range matrix.Pairs {
		switch {
		case p.Report != nil:
			fmt.Fprintf(os.Stderr, "  %-40s %6.1f  %-2s", p.Key, p.Report.Score, p.Report.Grade)
			if p.Report.Reason != model.ReasonNone {
				fmt.Fprintf(os.Stderr, "  %s", p.Report.Reason)
			}
			fmt.Fprintln(os.Stderr)
		case p.Status == model.StatusFailed:
			fmt.Fprintf(os.Stderr, "  %-40s FAILED  %s\n", p.Key, p.FailReason)
		default:
			fmt.Fprintf(os.Stderr, "  %-40s %s\n", p.Key, p.Status)
		}
	}
}
