package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type jobPayload struct {
	ID           string  `json:"id"`
	AssetID      string  `json:"asset_id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ExternalRef  string  `json:"external_ref"`
	OutputRef    string  `json:"output_ref"`
	ErrorMessage string  `json:"error_message"`
	RetryCount   int     `json:"retry_count"`
	NeedsReview  bool    `json:"needs_review"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  string  `json:"completed_at"`
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage processing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			query := url.Values{}
			for _, status := range statuses {
				query.Add("status", status)
			}
			path := "/api/jobs"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			var payload struct {
				Jobs []jobPayload `json:"jobs"`
			}
			if err := client.get(path, &payload); err != nil {
				return err
			}
			if len(payload.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(payload.Jobs))
			for _, job := range payload.Jobs {
				review := ""
				if job.NeedsReview {
					review = "review"
				}
				rows = append(rows, []string{
					job.ID,
					job.AssetID,
					job.Kind,
					job.Status,
					fmt.Sprintf("%.0f%%", job.Progress),
					strconv.Itoa(job.RetryCount),
					review,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Asset", "Kind", "Status", "Progress", "Retries", ""},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, processing, completed, failed)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var job jobPayload
			if err := client.get("/api/jobs/"+url.PathEscape(args[0]), &job); err != nil {
				return err
			}

			rows := [][]string{
				{"ID", job.ID},
				{"Asset", job.AssetID},
				{"Kind", job.Kind},
				{"Status", job.Status},
				{"Progress", fmt.Sprintf("%.0f%%", job.Progress)},
				{"Retries", strconv.Itoa(job.RetryCount)},
				{"Needs review", strconv.FormatBool(job.NeedsReview)},
				{"Created", job.CreatedAt},
				{"Updated", job.UpdatedAt},
			}
			if job.ExternalRef != "" {
				rows = append(rows, []string{"External ref", job.ExternalRef})
			}
			if job.OutputRef != "" {
				rows = append(rows, []string{"Output", job.OutputRef})
			}
			if job.CompletedAt != "" {
				rows = append(rows, []string{"Completed", job.CompletedAt})
			}
			if job.ErrorMessage != "" {
				rows = append(rows, []string{"Error", job.ErrorMessage})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Put a failed job back in the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var job jobPayload
			if err := client.post("/api/jobs/"+url.PathEscape(args[0])+"/retry", nil, &job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s again.\n", job.ID, job.Status)
			return nil
		},
	}
}
