package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"viola-joke/internal/config"
	"viola-joke/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import jokes for moderation",
	Long: `Import jokes from outside sources. Imported jokes are stored unapproved
and exact duplicates of stored jokes are skipped.`,
}

var importFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Import a JSON array of jokes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		imp := importer.New(config.ImporterConfig{}, importer.NewDirectSink(svc))
		n, err := imp.ImportFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "processed %d jokes from %s\n", n, args[0])
		return nil
	},
}

var importRedditCmd = &cobra.Command{
	Use:   "reddit",
	Short: "Import hot posts from subreddits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		subreddits, _ := cmd.Flags().GetStringSlice("subreddit")
		limit, _ := cmd.Flags().GetInt("limit")

		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		cfg := config.ImporterConfig{
			Enabled: true,
			Reddit: config.RedditConfig{
				Enabled:    true,
				Subreddits: subreddits,
				Limit:      limit,
			},
		}
		n, err := importer.New(cfg, importer.NewDirectSink(svc)).ImportReddit(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "processed %d posts\n", n)
		return nil
	},
}

func init() {
	importRedditCmd.Flags().StringSlice("subreddit", []string{"violajokes"}, "subreddits to read")
	importRedditCmd.Flags().Int("limit", 25, "posts per subreddit")

	importCmd.AddCommand(importFileCmd, importRedditCmd)
}
