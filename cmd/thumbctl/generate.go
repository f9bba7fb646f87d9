package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lazythumb/internal/capture"
	"lazythumb/internal/logging"
	"lazythumb/internal/visibility"
)

type generateOptions struct {
	poster   string
	parallel int
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate URL...",
		Short: "Resolve a thumbnail for each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()

			failed, err := generate(cmd.Context(), cmd.OutOrStdout(), e, args, *opts)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d URLs have no thumbnail", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.poster, "poster", "", "external poster to use instead of extracting (single URL only)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "URLs resolved at once (default EXTRACTOR_WORKERS)")
	return cmd
}

// generate resolves every URL and writes one line per URL in input order.
// It returns how many ended without a thumbnail.
func generate(ctx context.Context, out io.Writer, e *env, urls []string, opts generateOptions) (int, error) {
	if opts.poster != "" && len(urls) != 1 {
		return 0, fmt.Errorf("--poster needs exactly one URL, got %d", len(urls))
	}
	parallel := opts.parallel
	if parallel <= 0 {
		parallel = e.config.Workers
	}

	deps := capture.Deps{
		Cache:      e.store,
		Factory:    e.factory,
		Encoder:    e.encoder,
		Visibility: visibility.AlwaysVisible{},
	}
	sessionOpts := capture.Options{
		Extractor: e.config.ExtractorSettings(),
		Log:       logging.With("cmd", "generate"),
	}

	results := make([]capture.Snapshot, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, url := range urls {
		g.Go(func() error {
			ref := capture.MediaReference{URL: url, ExternalPoster: opts.poster}
			s := capture.Mount(uuid.NewString(), ref, deps, sessionOpts)
			defer s.Unmount()

			select {
			case <-s.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			results[i] = s.Snapshot()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	failed := 0
	for i, snap := range results {
		outcome := string(snap.Source)
		if snap.State != capture.Done {
			outcome = "no_thumbnail"
			failed++
		}
		fmt.Fprintf(out, "%s\t%s\t%d\n", urls[i], outcome, len(snap.Payload))
	}
	return failed, nil
}
