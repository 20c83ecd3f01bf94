package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		tiers          []string
		thumbnailCount int
		duration       float64
	)

	cmd := &cobra.Command{
		Use:   "process <asset-id> <source-ref>",
		Short: "Start a readiness batch for an uploaded asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			request := map[string]any{
				"asset_id":         args[0],
				"source_ref":       args[1],
				"tiers":            tiers,
				"thumbnail_count":  thumbnailCount,
				"duration_seconds": duration,
			}
			var accepted struct {
				AssetID string   `json:"asset_id"`
				JobIDs  []string `json:"job_ids"`
			}
			if err := client.post("/api/process", request, &accepted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Batch started for %s with %d jobs:\n  %s\n",
				accepted.AssetID, len(accepted.JobIDs), strings.Join(accepted.JobIDs, "\n  "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tiers, "tier", nil, "Quality tiers to produce (defaults to configured ladder)")
	cmd.Flags().IntVar(&thumbnailCount, "thumbnails", 0, "Number of preview thumbnails (defaults to configured count)")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Source duration in seconds, used to place thumbnails")
	return cmd
}
