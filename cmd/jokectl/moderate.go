package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List jokes awaiting moderation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		jokes, err := svc.ListUnapproved(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(jokes) == 0 {
			fmt.Fprintln(out, "No jokes awaiting moderation.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSUBMITTED\tAUTHOR\tCONTENT")
		for _, j := range jokes {
			submitted := "-"
			if j.CreatedAt != nil {
				submitted = j.CreatedAt.Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, submitted, j.DisplayAuthor(), oneLine(j.Content, 60))
		}
		return w.Flush()
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>...",
	Short: "Publish jokes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		for _, id := range args {
			if err := svc.Approve(cmd.Context(), id); err != nil {
				return fmt.Errorf("approve %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", id)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Remove jokes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		for _, id := range args {
			if err := svc.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show joke counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		stats, err := svc.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "approved: %d\npending:  %d\ntags:     %d\n",
			stats.Approved, stats.Pending, stats.Tags)
		return nil
	},
}

func oneLine(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return string(r)
}
