package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var consensusJobID string

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Run the multi-reviewer consensus pass over a completed tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "consensus")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.consensus().Run(ctx, consensusJobID)
		if err != nil {
			return eris.Wrap(err, "consensus")
		}
		zap.L().Info("consensus complete",
			zap.String("job_id", consensusJobID),
			zap.Strings("reviewers", report.Reviewers),
			zap.Int("applied", len(report.Applied)),
			zap.Int("suggestions", len(report.Suggestions)),
		)
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	consensusCmd.Flags().StringVar(&consensusJobID, "job", "", "job id")
	_ = consensusCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(consensusCmd)
}
