package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"lazythumb/internal/cache"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
	"lazythumb/internal/startup"
)

// env is what the subcommands run against.
type env struct {
	config  *startup.Config
	store   cache.Store
	factory media.Factory
	encoder media.Encoder
	close   func()
}

// buildEnv opens the configured backends. Tests replace it.
var buildEnv = func(ctx context.Context, cfg *startup.Config, withDecoder bool) (*env, error) {
	store, err := startup.OpenCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("can not open cache: %w", err)
	}
	e := &env{config: cfg, store: store, close: func() { _ = store.Close() }}
	if !withDecoder {
		return e, nil
	}

	decoder, err := startup.OpenDecoder(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("can not open decoder: %w", err)
	}
	e.factory = decoder.Factory
	e.encoder = media.NewEncoder(cfg.Encoder)
	e.close = func() {
		if err := decoder.Close(); err != nil {
			logging.Warn("decoder close: %v", err)
		}
		media.ShutdownVips()
		_ = store.Close()
	}
	return e, nil
}

type rootOptions struct {
	backend  string
	cacheDir string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "thumbctl",
		Short:         "Generate and inspect lazy video thumbnails",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.logLevel == "" {
				return nil
			}
			level, ok := logging.ParseLevel(opts.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			logging.SetLevel(level)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", "", "cache backend: sqlite, minio or memory (default from CACHE_BACKEND)")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "directory holding thumbnails.db (default from CACHE_DIR)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default from LOG_LEVEL)")

	cmd.AddCommand(newGenerateCmd(opts), newCacheCmd(opts))
	return cmd
}

// loadConfig reads the environment and applies the persistent flags.
func (o *rootOptions) loadConfig() (*startup.Config, error) {
	if err := startup.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := startup.Parse()
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		cfg.CacheBackend = o.backend
	}
	if o.cacheDir != "" {
		cfg.CacheDir = o.cacheDir
		cfg.DatabasePath = filepath.Join(o.cacheDir, "thumbnails.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) open(ctx context.Context, withDecoder bool) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return buildEnv(ctx, cfg, withDecoder)
}
