package standard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ccheshirecat/msgbus/internal/cli/client"
	"github.com/ccheshirecat/msgbus/internal/cli/tui"
)

func newSendCmd() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "send <topic-id|name> [payload]",
		Short: "Publish a message",
		Long:  "Publish a message on a topic. Payloads that are not valid JSON are sent as JSON strings.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}

			var raw string
			switch {
			case fromStdin:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				raw = strings.TrimSpace(string(data))
			case len(args) == 2:
				raw = args[1]
			}
			payload := payloadFromArg(raw)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if id, perr := parseTopicID(args[0]); perr == nil {
				err = api.SendByID(ctx, id, payload)
			} else {
				err = api.SendByName(ctx, args[0], payload)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message sent to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the payload from stdin")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch [topic-id...]",
		Short: "Stream messages from topics (all topics when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			topics := make([]uint32, 0, len(args))
			for _, arg := range args {
				id, err := parseTopicID(arg)
				if err != nil {
					return err
				}
				topics = append(topics, id)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !plain && isTerminal(cmd.OutOrStdout()) {
				return tui.Run(ctx, api, topics)
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			err = api.Watch(ctx, topics, func(f client.Frame) {
				_ = enc.Encode(f)
			})
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print one JSON frame per line instead of the interactive view")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
