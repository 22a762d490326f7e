package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var jobsBatch string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and stop processing jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the jobs of a batch, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "inspect", false)
		if err != nil {
			return err
		}
		defer env.Close()

		js, err := env.Store.ListJobs(ctx, jobsBatch)
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}
		return printJSON(os.Stdout, js)
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "inspect", false)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Store.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get job")
		}
		return printJSON(os.Stdout, job)
	},
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Stop a job; a worker holding it exits at its next batch boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "run", true)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Orchestrator.StopJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "stop job")
		}
		return printJSON(os.Stdout, job)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsBatch, "batch", "", "upload batch id (required)")
	_ = jobsListCmd.MarkFlagRequired("batch")
	jobsCmd.AddCommand(jobsListCmd, jobsStatusCmd, jobsStopCmd)
	rootCmd.AddCommand(jobsCmd)
}
