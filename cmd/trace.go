package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/intake"
)

var (
	traceIntake string
	traceJobID  string
	traceDepth  int
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Build an ancestor tree from an intake document",
	Long:  "Reads a YAML or JSON intake document, searches the configured sources generation by generation and stores every resolved position.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, err := intake.Load(traceIntake)
		if err != nil {
			return err
		}
		if traceJobID != "" {
			doc.JobID = traceJobID
		}
		if traceDepth > 0 {
			doc.Depth = traceDepth
		}
		if err := doc.Validate(); err != nil {
			return err
		}

		env, err := initEnv(ctx, "trace")
		if err != nil {
			return err
		}
		defer env.Close()

		req := doc.Request()
		if req.Depth <= 0 {
			req.Depth = cfg.Traversal.MaxDepth
		}
		sum, err := env.controller().Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "trace")
		}
		zap.L().Info("trace complete",
			zap.String("job_id", sum.JobID),
			zap.Int("processed", sum.Processed),
			zap.Int("accepted", sum.Accepted),
			zap.Int("not_found", sum.NotFound),
		)
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	traceCmd.Flags().StringVar(&traceIntake, "intake", "", "intake document (YAML or JSON)")
	traceCmd.Flags().StringVar(&traceJobID, "job", "", "re-run an existing job")
	traceCmd.Flags().IntVar(&traceDepth, "depth", 0, "generations to build, the subject included (default from intake or config)")
	_ = traceCmd.MarkFlagRequired("intake")
	rootCmd.AddCommand(traceCmd)
}
