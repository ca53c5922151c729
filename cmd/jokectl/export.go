package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"viola-joke/internal/service"
)

var (
	sitemapCmd = &cobra.Command{
		Use:   "sitemap",
		Short: "Write the XML sitemap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return export(cmd, (*service.Service).Sitemap)
		},
	}

	feedCmd = &cobra.Command{
		Use:   "feed",
		Short: "Write the RSS feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return export(cmd, (*service.Service).Feed)
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{sitemapCmd, feedCmd} {
		cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	}
}

func export(cmd *cobra.Command, render func(*service.Service, context.Context) ([]byte, error)) error {
	svc, closeFn, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	body, err := render(svc, cmd.Context())
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}

	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(body))
	return nil
}
