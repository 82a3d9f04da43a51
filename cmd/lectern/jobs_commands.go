package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/report"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage processing jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsCreateCommand(ctx))
	jobsCmd.AddCommand(newJobsExportCommand(ctx))

	return jobsCmd
}

type jobFilterFlags struct {
	statuses    []string
	audiobookID int64
	limit       int
	offset      int
}

func (f *jobFilterFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringSliceVarP(&f.statuses, "status", "s", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().Int64Var(&f.audiobookID, "audiobook", 0, "Only jobs for this audiobook id")
	cmd.Flags().IntVar(&f.limit, "limit", defaultLimit, "Maximum number of jobs")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Number of jobs to skip")
}

func (f *jobFilterFlags) query() api.JobQuery {
	return api.JobQuery{Statuses: f.statuses, AudiobookID: f.audiobookID, Limit: f.limit, Offset: f.offset}
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var filter jobFilterFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			resp, err := svc.List(cmd.Context(), filter.query())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs found")
				return nil
			}
			fmt.Fprint(out, renderTable(jobListColumns, buildJobListRows(resp.Jobs, shouldColorize(out))))
			if resp.Total > len(resp.Jobs) {
				fmt.Fprintf(out, "Showing %d-%d of %d\n", resp.Offset+1, resp.Offset+len(resp.Jobs), resp.Total)
			}
			return nil
		},
	}
	filter.register(cmd, 50)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			job, err := svc.Describe(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.JobResponse{Job: *job})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(fieldValueColumns, buildJobDetailRows(*job)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.catalogStore()
			if err != nil {
				return err
			}
			health, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := store.JobCounts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Active", statusInfo, strconv.Itoa(health.Active), colorize))
			fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, strconv.Itoa(health.Pending), colorize))
			failedKind := statusOK
			if health.Failed > 0 {
				failedKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Failed", failedKind, strconv.Itoa(health.Failed), colorize))
			fmt.Fprintln(out, renderStatusLine("Completed", statusOK, strconv.Itoa(health.Completed), colorize))
			fmt.Fprintln(out)
			fmt.Fprint(out, renderTable(statusCountColumns, buildStatusCountRows(api.MergeJobCounts(counts), colorize)))
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			job, err := svc.Retry(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d reset to %s\n", job.ID, job.Status)
			return nil
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			job, err := svc.Cancel(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d cancelled (audiobook %d reverted to %s)\n", job.ID, job.AudiobookID, catalog.AudiobookDraft)
			return nil
		},
	}
}

func newJobsCreateCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "create <audiobook-id>",
		Short: "Queue a job for an audiobook that already has a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "audiobook")
			if err != nil {
				return err
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			job, err := svc.Create(cmd.Context(), api.CreateJobRequest{AudiobookID: id, Force: force})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d for audiobook %d\n", job.ID, job.AudiobookID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Fail any active job for the audiobook first")
	return cmd
}

func newJobsExportCommand(ctx *commandContext) *cobra.Command {
	var filter jobFilterFlags
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export jobs to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(output)
			if target == "" {
				return fmt.Errorf("--output is required")
			}
			target, err := config.ExpandPath(target)
			if err != nil {
				return err
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			resp, err := svc.List(cmd.Context(), filter.query())
			if err != nil {
				return err
			}

			file, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if err := report.WriteJobsWorkbook(file, resp.Jobs, resp.Counts); err != nil {
				file.Close()
				_ = os.Remove(target)
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d jobs to %s\n", len(resp.Jobs), target)
			return nil
		},
	}
	filter.register(cmd, 1000)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination .xlsx path")
	return cmd
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return id, nil
}
