package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show bus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			stats, err := api.Stats(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subscriptions: %d\nOwners: %d\nSessions: %d\nMessage code: %d\nMessages sent: %d\n",
				stats.Subscriptions, stats.Owners, len(stats.Sessions), stats.MessageCode, stats.Traffic.Total)
			if len(stats.Traffic.Topics) > 0 {
				fmt.Fprintf(out, "\n%-10s %s\n", "TOPIC", "COUNT")
				for _, tc := range stats.Traffic.Topics {
					fmt.Fprintf(out, "%-10d %d\n", tc.Topic, tc.Count)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
