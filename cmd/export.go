package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/export"
	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	exportBatch  string
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a batch's records as GeoJSON or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "export", false)
		if err != nil {
			return err
		}
		defer env.Close()

		rs, err := env.Store.GetRecords(ctx, exportBatch)
		if err != nil {
			return eris.Wrap(err, "load records")
		}

		var w io.Writer = os.Stdout
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		n, err := writeExport(w, exportFormat, rs)
		if err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("batch_id", exportBatch),
			zap.String("format", exportFormat),
			zap.Int("records", n),
		)
		return nil
	},
}

func writeExport(w io.Writer, format string, rs []model.Record) (int, error) {
	switch format {
	case "geojson":
		return export.WriteGeoJSON(w, rs)
	case "xlsx":
		return export.WriteXLSX(w, rs)
	default:
		return 0, eris.Errorf("unsupported export format %q (want geojson or xlsx)", format)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportBatch, "batch", "", "upload batch id (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "geojson", "geojson or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default stdout)")
	_ = exportCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(exportCmd)
}
