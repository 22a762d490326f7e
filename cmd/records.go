package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	recordsBatch  string
	recordsStatus string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List and delete business records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the live records of a batch in upload order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "inspect", false)
		if err != nil {
			return err
		}
		defer env.Close()

		rs, err := env.Store.GetRecords(ctx, recordsBatch)
		if err != nil {
			return eris.Wrap(err, "list records")
		}
		return printJSON(os.Stdout, filterStatus(rs, recordsStatus))
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <record-id>",
	Short: "Soft-delete a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "inspect", false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.DeleteRecord(ctx, args[0]); err != nil {
			return eris.Wrap(err, "delete record")
		}
		zap.L().Info("record deleted", zap.String("record_id", args[0]))
		return nil
	},
}

func filterStatus(rs []model.Record, status string) []model.Record {
	if status == "" {
		return rs
	}
	out := make([]model.Record, 0, len(rs))
	for _, r := range rs {
		if string(r.Status) == status {
			out = append(out, r)
		}
	}
	return out
}

func init() {
	recordsListCmd.Flags().StringVar(&recordsBatch, "batch", "", "upload batch id (required)")
	recordsListCmd.Flags().StringVar(&recordsStatus, "status", "", "only records with this status")
	_ = recordsListCmd.MarkFlagRequired("batch")
	recordsCmd.AddCommand(recordsListCmd, recordsDeleteCmd)
	rootCmd.AddCommand(recordsCmd)
}
