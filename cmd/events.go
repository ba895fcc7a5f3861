package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gradewise/internal/notify"
	"github.com/abhisek/gradewise/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List notification events from the outbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		after, _ := cmd.Flags().GetInt64("after")
		kind, _ := cmd.Flags().GetString("kind")
		student, _ := cmd.Flags().GetString("student")
		payload, _ := cmd.Flags().GetBool("payload")

		rt, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		events, err := rt.store.Outbox().ListEvents(cmd.Context(), store.EventFilter{
			QueryOpts: store.QueryOpts{Limit: limit, After: after},
			Kind:      notify.Kind(kind),
			StudentID: student,
		})
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No events found.")
			return nil
		}

		fmt.Fprintf(out, "%-6s  %-19s  %-22s  %-12s  %s\n", "Seq", "Timestamp", "Kind", "Student", "Subject")
		fmt.Fprintln(out, strings.Repeat("─", 90))
		for _, e := range events {
			fmt.Fprintf(out, "%-6d  %-19s  %-22s  %-12s  %s\n",
				e.Sequence,
				e.At.Local().Format("2006-01-02 15:04:05"),
				e.Kind,
				truncate(e.StudentID, 12),
				e.Subject,
			)
			if payload && len(e.Payload) > 0 {
				fmt.Fprintf(out, "        %s\n", e.Payload)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntP("limit", "n", 50, "Number of events to show")
	eventsCmd.Flags().Int64("after", 0, "Only events after this sequence number")
	eventsCmd.Flags().StringP("kind", "k", "", "Filter by kind (e.g. attempt.graded, review.needed)")
	eventsCmd.Flags().StringP("student", "s", "", "Filter by student")
	eventsCmd.Flags().Bool("payload", false, "Print event payloads")
}
