package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/model"
)

var matrixPairsPath string

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Validate every pair in the plan and build the coverage matrix",
	Long:  "Runs the full validation plan with a bounded worker pool, persists the resulting matrix, and prints a per-pair summary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "matrix", matrixPairsPath)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Store.CreateRun(ctx, env.Pairs)
		if err != nil {
			return err
		}
		if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			return err
		}

		matrix, err := env.Engine.ValidateMatrix(ctx, env.Pairs)
		if err != nil {
			// Mark the run failed before surfacing; a half-finished run must
			// not stay "running" forever.
			if uErr := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed); uErr != nil {
				zap.L().Error("failed to mark run failed", zap.String("run_id", run.ID), zap.Error(uErr))
			}
			return eris.Wrap(err, "validate matrix")
		}

		if err := env.Store.SaveMatrix(ctx, run.ID, matrix); err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.String("matrix_id", matrix.ID),
		)
		printMatrixSummary(matrix)
		return nil
	},
}

func init() {
	matrixCmd.Flags().StringVar(&matrixPairsPath, "pairs", "pairs.yaml", "validation plan file")
	rootCmd.AddCommand(matrixCmd)
}
