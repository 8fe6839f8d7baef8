package standard

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/msgbus/internal/cli/client"
)

// Version is stamped at build time.
var Version = "dev"

// Execute runs the Cobra-based CLI entry point.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "busctl",
		Short:         "msgbus command-line interface",
		Long:          "busctl publishes messages, watches topics and manages the topic catalog of a running busd.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("api", "a", envOrDefault("MSGBUS_API_BASE", client.DefaultBaseURL), "busd base URL")
	cmd.PersistentFlags().String("api-key", envOrDefault("MSGBUS_API_KEY", ""), "busd API key")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newTopicsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newSetupCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the busctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "busctl %s\n", Version)
		},
	}
}
