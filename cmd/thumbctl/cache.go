package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lazythumb/internal/cache"
	"lazythumb/internal/media"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cached thumbnails",
	}
	cmd.AddCommand(newCacheGetCmd(root), newCacheRmCmd(root), newCacheStatsCmd(root))
	return cmd
}

func newCacheGetCmd(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Print the cached record for URL, or write its image with --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.store.Get(cmd.Context(), args[0])
			if errors.Is(err, cache.ErrNotFound) {
				return fmt.Errorf("%s is not cached", args[0])
			}
			if err != nil {
				return err
			}

			if output == "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			data, _, err := media.ParseDataURI(res.Payload)
			if err != nil {
				return fmt.Errorf("cached payload is not an image: %w", err)
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the decoded image to this file")
	return cmd
}

func newCacheRmCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm URL...",
		Short: "Invalidate cached thumbnails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			for _, url := range args {
				if err := e.store.Delete(cmd.Context(), url); err != nil {
					return fmt.Errorf("remove %s: %w", url, err)
				}
			}
			return nil
		},
	}
}

func newCacheStatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage against the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := root.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			stats, err := e.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			quota := "unlimited"
			if stats.QuotaBytes > 0 {
				quota = fmt.Sprintf("%d", stats.QuotaBytes)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries\t%d\nbytes\t%d\nquota\t%s\n", stats.Entries, stats.TotalBytes, quota)
			return nil
		},
	}
}
