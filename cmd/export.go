package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/export"
)

var (
	exportJobID  string
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a tree as XLSX or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if exportFormat == export.FormatXLSX && exportOut == "" {
			return eris.New("export: --out is required for xlsx")
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tree, err := export.Load(ctx, st, exportJobID)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "export: create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		if err := export.Write(w, exportFormat, tree); err != nil {
			return err
		}
		if exportOut != "" {
			zap.L().Info("tree exported",
				zap.String("job_id", exportJobID),
				zap.String("format", exportFormat),
				zap.String("path", exportOut),
				zap.Int("positions", len(tree.Ancestors)),
			)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportJobID, "job", "", "job id")
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatJSON, "xlsx or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout for json)")
	_ = exportCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(exportCmd)
}
