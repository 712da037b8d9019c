// Package cli implements the wakacard command-line interface.
//
// This package provides commands for rendering stats cards, serving them over
// HTTP, and managing the card cache and configuration. The CLI is built using
// cobra and logs through charmbracelet/log.
//
// # Commands
//
// The main commands are:
//   - render: Draw a card PNG from a stats JSON file
//   - serve: Run the HTTP card service
//   - cache: Clear or locate the card cache
//   - config: Print the effective configuration
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging and --log-file
// for a rotating copy of the log. Loggers are passed through context.Context
// to allow structured progress tracking.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/wakacard/internal/config"
	"github.com/matzehuels/wakacard/pkg/avatar"
	"github.com/matzehuels/wakacard/pkg/buildinfo"
	"github.com/matzehuels/wakacard/pkg/cache"
	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/fonts"
	"github.com/matzehuels/wakacard/pkg/httputil"
	"github.com/matzehuels/wakacard/pkg/pipeline"
)

// appName is the application name used for directories and display.
const appName = "wakacard"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	stderr     io.Writer
	configPath string
	logFile    string
	verbose    bool
	cfg        *config.Config
	closers    []io.Closer
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		stderr: w,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// Close releases resources opened while running a command, such as the
// log file.
func (c *CLI) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               appName,
		Short:             "wakacard renders coding-time stats as a PNG card",
		Long:              `wakacard turns a WakaTime-style stats payload into a summary card: total coding time, the top five languages as bars, the user's avatar and a timestamp.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default $WAKACARD_CONFIG or the user config dir)")
	flags.StringVar(&c.logFile, "log-file", "", "also write logs to this file, rotated by size")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup runs before every command: it applies the log flags, loads the
// config and attaches the logger to the command context.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	level := LogInfo
	if c.verbose {
		level = LogDebug
	}
	if c.logFile != "" {
		w, closer := rotatingWriter(c.logFile)
		c.closers = append(c.closers, closer)
		c.Logger = newLogger(io.MultiWriter(c.stderr, w), level)
	} else {
		c.SetLogLevel(level)
	}

	path, explicit := c.configPath, c.configPath != ""
	if !explicit {
		p, err := config.DefaultPath()
		if err != nil {
			c.Logger.Debug("no default config path", "err", err)
		}
		path = p
	}
	if explicit {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.configPath = path
	c.Logger.Debug("loaded config", "path", path)

	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

// config returns the loaded configuration, or the defaults when setup has
// not run.
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		return config.Default()
	}
	return c.cfg
}

// openCache opens the configured cache backend. noCache forces the null cache.
func (c *CLI) openCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	store, err := cache.Open(ctx, cfg.CacheOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}
	return store, nil
}

// buildRunner creates a pipeline runner for cfg around an already opened cache.
func buildRunner(cfg *config.Config, store cache.Cache, logger *log.Logger) (*pipeline.Runner, error) {
	keys := cfg.Keyer()
	r := pipeline.NewRunner(store, keys, logger)

	font := fonts.Load(cfg.Font)
	renderers := make(map[string]*card.Renderer, len(pipeline.Variants))
	for _, v := range pipeline.Variants {
		g, err := cfg.Geometry(v)
		if err != nil {
			return nil, err
		}
		rr, err := card.NewRenderer(card.WithGeometry(g), card.WithFonts(font), card.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		renderers[v] = rr
	}
	r.Renderers = renderers
	r.DefaultVariant = cfg.Card.Variant

	avatars, err := avatar.NewClient(avatar.Config{
		BaseURL:     cfg.Avatar.BaseURL,
		CheckExists: cfg.Avatar.CheckExists,
		TTL:         cfg.Avatar.TTL.Duration,
		HTTP: httputil.Options{
			Timeout:    cfg.Avatar.Timeout.Duration,
			RetryMax:   retries(cfg.Avatar.Retries),
			Logger:     logger,
			PublicOnly: cfg.Avatar.PublicOnly,
		},
	}, store, keys, logger)
	if err != nil {
		return nil, err
	}
	r.Avatars = avatars

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	r.Location = loc
	r.TimestampLayout = cfg.Watermark.Layout
	if cfg.Cache.TTL.Duration > 0 {
		r.TTL = cfg.Cache.TTL.Duration
	}
	return r, nil
}

// retries maps the config's "0 means none" onto httputil's "0 means default".
func retries(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
