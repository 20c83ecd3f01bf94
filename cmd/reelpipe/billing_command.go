package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBillingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "billing <subscriber-id> <success|failure>",
		Short: "Record a billing outcome for a subscriber",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var result struct {
				SubscriberID        string `json:"subscriber_id"`
				Status              string `json:"status"`
				PreviousStatus      string `json:"previous_status"`
				PaymentFailureCount int    `json:"payment_failure_count"`
				SyncJobID           string `json:"sync_job_id"`
			}
			request := map[string]string{"subscriber_id": args[0], "outcome": args[1]}
			if err := client.post("/api/billing", request, &result); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Subscriber %s: %s -> %s (failures: %d)\n",
				result.SubscriberID, result.PreviousStatus, result.Status, result.PaymentFailureCount)
			if result.SyncJobID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Access sync scheduled: %s\n", result.SyncJobID)
			}
			return nil
		},
	}
}
