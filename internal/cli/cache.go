package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wakacard/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the card and avatar cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached card and avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.config()

			store, err := c.openCache(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer store.Close()

			clearer, ok := store.(cache.Clearer)
			if !ok {
				return fmt.Errorf("%s cache cannot be cleared", cfg.Cache.Backend)
			}
			spin := newSpinner(ctx, cmd.ErrOrStderr(), "Clearing cache...")
			spin.Start()
			if err := clearer.Clear(ctx); err != nil {
				spin.Fail("Cache not cleared")
				return fmt.Errorf("clear cache: %w", err)
			}

			spin.Stop()
			printSuccess("Cache cleared")
			printDetail("Backend: %s", backendName(cfg.Cache.Backend))
			if dir, err := cacheDir(cfg.Cache.Backend, cfg.Cache.Dir); err == nil && dir != "" {
				printDetail("Directory: %s", dir)
			}
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.config()
			dir, err := cacheDir(cfg.Cache.Backend, cfg.Cache.Dir)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			if dir == "" {
				return fmt.Errorf("the %s cache has no directory", backendName(cfg.Cache.Backend))
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// cacheDir returns the file cache directory, or "" for other backends.
func cacheDir(backend, dir string) (string, error) {
	if backend != cache.BackendFile {
		return "", nil
	}
	if dir != "" {
		return dir, nil
	}
	return cache.DefaultDir()
}

func backendName(backend string) string {
	if backend == "" {
		return cache.BackendNone
	}
	return backend
}
