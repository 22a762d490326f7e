package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/ingest"
)

var (
	importFile  string
	importName  string
	importUser  string
	importSheet string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an XLSX or CSV file as an upload batch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import", false)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := importFileBatch(cmd, env)
		if err != nil {
			return err
		}

		return printJSON(os.Stdout, map[string]any{
			"batch_id": res.Batch.ID,
			"records":  len(res.Records),
			"mapping":  res.Mapping,
		})
	},
}

// importFileBatch reads --file and stores it as a new batch.
func importFileBatch(cmd *cobra.Command, env *appEnv) (*ingest.ImportResult, error) {
	ctx := cmd.Context()

	var (
		tbl *ingest.Table
		err error
	)
	if importSheet != "" && filepath.Ext(importFile) == ".xlsx" {
		tbl, err = readSheet(importFile, importSheet)
	} else {
		tbl, err = ingest.ReadRows(ctx, importFile)
	}
	if err != nil {
		return nil, eris.Wrap(err, "read upload")
	}

	name := importName
	if name == "" {
		name = filepath.Base(importFile)
	}
	res, err := ingest.Import(ctx, env.Store, ingest.ImportRequest{
		UserID: importUser,
		Name:   name,
		Table:  tbl,
	})
	if err != nil {
		return nil, eris.Wrap(err, "import")
	}

	zap.L().Info("import complete",
		zap.String("batch_id", res.Batch.ID),
		zap.Int("records", len(res.Records)),
		zap.String("file", importFile),
	)
	return res, nil
}

func readSheet(path, sheet string) (*ingest.Table, error) {
	raw, err := ingest.ReadXLSX(path, ingest.XLSXOptions{SheetName: sheet})
	if err != nil {
		return nil, err
	}
	return ingest.NewTable(raw)
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&importFile, "file", "", "path to .xlsx or .csv file")
	cmd.Flags().StringVar(&importName, "name", "", "batch name (default: file name)")
	cmd.Flags().StringVar(&importUser, "user", "", "owning user id")
	cmd.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default: first sheet)")
}

func init() {
	addImportFlags(importCmd)
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
