package main

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
)

type assetPayload struct {
	ID             string            `json:"id"`
	SourceRef      string            `json:"source_ref"`
	Status         string            `json:"status"`
	QualityOutputs map[string]string `json:"quality_outputs"`
	ThumbnailRefs  []string          `json:"thumbnail_refs"`
	ErrorMessage   string            `json:"error_message"`
}

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect content assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	assetsCmd.AddCommand(newAssetsShowCommand(ctx))
	return assetsCmd
}

func newAssetsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <asset-id>",
		Short: "Show an asset's readiness record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var asset assetPayload
			if err := client.get("/api/assets/"+url.PathEscape(args[0]), &asset); err != nil {
				return err
			}

			rows := [][]string{
				{"ID", asset.ID},
				{"Source", asset.SourceRef},
				{"Status", asset.Status},
			}
			if asset.ErrorMessage != "" {
				rows = append(rows, []string{"Error", asset.ErrorMessage})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))

			if len(asset.QualityOutputs) > 0 {
				tiers := make([]string, 0, len(asset.QualityOutputs))
				for tier := range asset.QualityOutputs {
					tiers = append(tiers, tier)
				}
				sort.Strings(tiers)
				outputRows := make([][]string, 0, len(tiers))
				for _, tier := range tiers {
					outputRows = append(outputRows, []string{tier, asset.QualityOutputs[tier]})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tier", "Output"}, outputRows, nil))
			}
			if len(asset.ThumbnailRefs) > 0 {
				thumbRows := make([][]string, 0, len(asset.ThumbnailRefs))
				for i, ref := range asset.ThumbnailRefs {
					thumbRows = append(thumbRows, []string{fmt.Sprintf("%d", i+1), ref})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Thumbnail"}, thumbRows, []columnAlignment{alignRight, alignLeft}))
			}
			return nil
		},
	}
}
