package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/echolabsdev/prism-sub001/config"
	"github.com/echolabsdev/prism-sub001/conversations"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List saved runs, or print the messages of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		store, err := conversations.Open(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer store.Close() //nolint:errcheck // Read-only use

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			messages, err := store.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, m := range messages {
				fmt.Fprintf(out, "[%s] %s\n", m.Role(), describeMessage(m))
			}
			return nil
		}

		runs, err := store.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tMODEL\tSTEPS\tTOKENS\tFINISH")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s/%s\t%d\t%d\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Provider, r.Model,
				r.Steps, r.Usage.TotalTokens(), r.FinishReason)
		}
		return w.Flush()
	},
}

func describeMessage(m llm.Message) string {
	switch msg := m.(type) {
	case llm.SystemMessage:
		return msg.Content
	case llm.UserMessage:
		if len(msg.Attachments) > 0 {
			return fmt.Sprintf("%s (+%d attachments)", msg.Content, len(msg.Attachments))
		}
		return msg.Content
	case llm.AssistantMessage:
		text := msg.Content
		for _, c := range msg.ToolCalls {
			text += fmt.Sprintf("\n  -> %s(%s)", c.Name, c.ArgumentsJSON())
		}
		return text
	case llm.ToolResultMessage:
		var text string
		for i, r := range msg.Results {
			if i > 0 {
				text += "\n"
			}
			text += fmt.Sprintf("%s: %s", r.ToolName, r.ResultString())
		}
		return text
	default:
		return fmt.Sprintf("%T", m)
	}
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
}
