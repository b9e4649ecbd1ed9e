package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check backing services and the local machine",
		Long: `Run preflight checks: PostgreSQL, Redis, the embedding service, disk
space, memory, file descriptors, and the log directory.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), cmd, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, verbose bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupCommandLogging(cfg)()

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	results := checker.RunAll(ctx, cfg)
	checker.PrintResults(results)

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}
