package main

import (
	"github.com/spf13/cobra"
)

var (
	adminJobID       string
	adminAsc         int
	adminReason      string
	adminCandidateID string
	adminCorrection  string
)

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a matched position, blacklisting its identifier and removing the positions above it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.admin().RejectPosition(ctx, adminJobID, adminAsc, adminReason)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Replace a position with one of its recorded search candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.admin().PromoteCandidate(ctx, adminJobID, adminAsc, adminCandidateID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse one corrections-log entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		entry, err := env.consensus().Undo(ctx, adminJobID, adminAsc, adminCorrection)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entry)
	},
}

func init() {
	for _, c := range []*cobra.Command{rejectCmd, promoteCmd, undoCmd} {
		c.Flags().StringVar(&adminJobID, "job", "", "job id")
		c.Flags().IntVar(&adminAsc, "asc", 0, "Ahnentafel position")
		_ = c.MarkFlagRequired("job")
		_ = c.MarkFlagRequired("asc")
		rootCmd.AddCommand(c)
	}
	rejectCmd.Flags().StringVar(&adminReason, "reason", "rejected by reviewer", "why the match is wrong")
	promoteCmd.Flags().StringVar(&adminCandidateID, "candidate", "", "search candidate id")
	_ = promoteCmd.MarkFlagRequired("candidate")
	undoCmd.Flags().StringVar(&adminCorrection, "correction", "", "corrections-log entry id")
	_ = undoCmd.MarkFlagRequired("correction")
}
