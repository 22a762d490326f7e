package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/jobs"
	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	runKind         string
	runBatch        string
	runBusinessType string
	runLocation     string
	runCount        int
	runLat          float64
	runLng          float64
	runRadius       int
	runSourceBatch  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job to completion and print its final state",
	Long: "Runs a verification, prospecting, ai-prospecting or location-prospecting job. " +
		"Pass --file to import a spreadsheet first: verification runs against it, " +
		"prospecting uses it as source data. Prospecting without --batch writes to a new batch. " +
		"Ctrl-C stops the job at its next batch boundary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run", true)
		if err != nil {
			return err
		}
		defer env.Close()

		kind := model.JobKind(runKind)
		imported := ""
		if importFile != "" {
			res, err := importFileBatch(cmd, env)
			if err != nil {
				return err
			}
			imported = res.Batch.ID
		}
		batchID, sourceBatchID, err := resolveRunBatches(kind, runBatch, runSourceBatch, imported)
		if err != nil {
			return err
		}

		opts := jobs.Options{
			BusinessType:  runBusinessType,
			Location:      runLocation,
			Count:         runCount,
			RadiusMeters:  runRadius,
			SourceBatchID: sourceBatchID,
		}
		if cmd.Flags().Changed("lat") {
			opts.Latitude = model.Ptr(runLat)
		}
		if cmd.Flags().Changed("lng") {
			opts.Longitude = model.Ptr(runLng)
		}

		task, err := env.Orchestrator.StartJob(ctx, kind, batchID, opts)
		if err != nil {
			return eris.Wrap(err, "start job")
		}

		sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			select {
			case <-sigCtx.Done():
				zap.L().Info("stopping job", zap.String("job_id", task.JobID))
				if _, err := env.Orchestrator.StopJob(context.WithoutCancel(ctx), task.JobID); err != nil {
					zap.L().Warn("stop job", zap.Error(err))
				}
			case <-task.Done():
			}
		}()

		job, err := task.Wait(context.WithoutCancel(ctx))
		if err != nil {
			return eris.Wrap(err, "wait for job")
		}

		zap.L().Info("job finished",
			zap.String("job_id", job.ID),
			zap.String("batch_id", job.UploadBatchID),
			zap.String("status", string(job.Status)),
			zap.Int("progress", job.Progress),
		)

		if err := printJSON(os.Stdout, job); err != nil {
			return err
		}
		if job.Status == model.JobStatusFailed {
			return eris.Errorf("job failed: %s", job.ErrorMessage)
		}
		return nil
	},
}

// resolveRunBatches picks the target and source batches for run. An
// imported file is verified in place but only seeds prospecting, whose
// results go to --batch or, when that is empty, to a new batch.
func resolveRunBatches(kind model.JobKind, batch, source, imported string) (batchID, sourceBatchID string, err error) {
	if kind == model.JobKindVerification {
		if imported != "" {
			return imported, source, nil
		}
		if batch == "" {
			return "", "", eris.New("verification needs --batch or --file")
		}
		return batch, source, nil
	}
	if imported != "" && source == "" {
		source = imported
	}
	return batch, source, nil
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runKind, "kind", string(model.JobKindVerification), "job kind: verification, prospecting, ai-prospecting, location-prospecting")
	f.StringVar(&runBatch, "batch", "", "upload batch id (optional for prospecting)")
	f.StringVar(&runBusinessType, "business-type", "", "business type to prospect for")
	f.StringVar(&runLocation, "location", "", "target location for template prospecting")
	f.IntVar(&runCount, "count", 0, "number of prospects to generate (default from config)")
	f.Float64Var(&runLat, "lat", 0, "search center latitude (location-prospecting)")
	f.Float64Var(&runLng, "lng", 0, "search center longitude (location-prospecting)")
	f.IntVar(&runRadius, "radius", 5000, "search radius in meters (location-prospecting)")
	f.StringVar(&runSourceBatch, "source-batch", "", "batch whose rows seed prospecting")
	addImportFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
