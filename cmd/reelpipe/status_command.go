package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type statusPayload struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DBPath       string `json:"db_path"`
	LockFilePath string `json:"lock_file_path"`
	Jobs         struct {
		Total      int `json:"total"`
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
	} `json:"jobs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and job queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var status statusPayload
			if err := client.get("/api/status", &status); err != nil {
				return err
			}

			running := "no"
			if status.Running {
				running = "yes"
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				[][]string{
					{"Running", running},
					{"PID", strconv.Itoa(status.PID)},
					{"Database", status.DBPath},
					{"Lock file", status.LockFilePath},
				},
				nil,
			))
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Jobs", "Count"},
				[][]string{
					{"Pending", strconv.Itoa(status.Jobs.Pending)},
					{"Processing", strconv.Itoa(status.Jobs.Processing)},
					{"Completed", strconv.Itoa(status.Jobs.Completed)},
					{"Failed", strconv.Itoa(status.Jobs.Failed)},
					{"Total", strconv.Itoa(status.Jobs.Total)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
