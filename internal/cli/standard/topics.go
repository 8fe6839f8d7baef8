package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/msgbus/internal/cli/client"
)

func newTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage the topic catalog",
	}

	cmd.AddCommand(newTopicsListCmd())
	cmd.AddCommand(newTopicsGetCmd())
	cmd.AddCommand(newTopicsAddCmd())
	cmd.AddCommand(newTopicsDeleteCmd())
	return cmd
}

func newTopicsListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			topics, err := api.ListTopics(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), topics)
			}
			if len(topics) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No topics found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-30s %s\n", "ID", "NAME", "DESCRIPTION")
			for _, t := range topics {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10d %-30s %s\n", t.ID, t.Name, t.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newTopicsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTopicID(args[0])
			if err != nil {
				return err
			}
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			t, err := api.GetTopic(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ID: %d\nName: %s\n", t.ID, t.Name)
			if t.Description != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Description: %s\n", t.Description)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newTopicsAddCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Register or rename a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTopicID(args[0])
			if err != nil {
				return err
			}
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			t, err := api.CreateTopic(ctx, client.Topic{ID: id, Name: args[1], Description: description})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Topic %d registered as %s\n", t.ID, t.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Topic description")
	return cmd
}

func newTopicsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a topic from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTopicID(args[0])
			if err != nil {
				return err
			}
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := api.DeleteTopic(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Topic %d deleted\n", id)
			return nil
		},
	}
}
