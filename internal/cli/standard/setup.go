package standard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/msgbus/internal/setup"
)

func newSetupCmd() *cobra.Command {
	var opts setup.Options

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install busd as a systemd service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if opts.BinaryPath == "" {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("resolve executable: %w", err)
				}
				opts.BinaryPath = filepath.Join(filepath.Dir(exe), "busd")
			}

			res, err := setup.Run(ctx, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Commands) > 0 {
				fmt.Fprintln(out, "Commands executed:")
				for _, line := range res.Commands {
					fmt.Fprintf(out, "  %s\n", line)
				}
			}
			if opts.DryRun {
				if res.Unit != "" {
					fmt.Fprintf(out, "\n%s", res.Unit)
				}
				fmt.Fprintln(out, "Dry run complete. Re-run without --dry-run as root to apply changes.")
			} else {
				fmt.Fprintln(out, "Setup completed successfully.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.BinaryPath, "binary", "", "Path to the busd binary (defaults to busd next to busctl)")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", envOrDefault("MSGBUS_WORK_DIR", "/var/lib/msgbus"), "Working directory for busd")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "Directory holding the topic catalog (defaults to work dir)")
	cmd.Flags().StringVar(&opts.LogDir, "log-dir", envOrDefault("MSGBUS_LOG_DIR", "/var/log/msgbus"), "Log directory for busd")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", envOrDefault("MSGBUS_HTTP_LISTEN", "127.0.0.1:7780"), "HTTP listen address for busd")
	cmd.Flags().StringVar(&opts.TopicsFile, "topics-file", "", "YAML topics file seeded at startup")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "busd log level")
	cmd.Flags().StringVar(&opts.ServicePath, "service-file", "/etc/systemd/system/busd.service", "Path to write systemd service unit (empty to skip)")
	cmd.Flags().BoolVar(&opts.StartService, "start", true, "Enable and start the service after writing it")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print commands without executing them")
	return cmd
}
