package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/matzehuels/wakacard/internal/config"
	"github.com/matzehuels/wakacard/internal/server"
	"github.com/matzehuels/wakacard/pkg/metrics"
	"github.com/matzehuels/wakacard/pkg/pipeline"
)

// serveCommand creates the serve command that runs the HTTP card service.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr      string
		noMetrics bool
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cards over HTTP",
		Long: `Serve cards over HTTP. POST a stats payload to /v1/cards to get a PNG back.

The config file is watched while serving; card, font, avatar and watermark
changes apply to the next request. Cache and listen address changes need a
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg := c.config()
			if addr == "" {
				addr = cfg.Server.Addr
			}

			store, err := c.openCache(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer store.Close()

			runner, err := buildRunner(cfg, store, logger)
			if err != nil {
				return err
			}

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
				server.WithTimeouts(cfg.Server.ReadTimeout.Duration, cfg.Server.WriteTimeout.Duration),
				server.WithAvatarHosts(cfg.Server.AvatarHosts...),
			}
			if !noMetrics {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				m := metrics.New(reg)
				m.Install()
				opts = append(opts, server.WithMetrics(m, reg))
			}
			srv := server.New(runner, opts...)

			if !noWatch && c.configPath != "" {
				err := config.Watch(ctx, c.configPath, func(next *config.Config, err error) {
					if err == nil {
						var r *pipeline.Runner
						if r, err = buildRunner(next, store, logger); err == nil {
							srv.SetRunner(r)
							logger.Info("config reloaded", "path", c.configPath)
							return
						}
					}
					logger.Warn("config reload failed, keeping previous config", "err", err)
				})
				if err != nil {
					logger.Warn("not watching config", "path", c.configPath, "err", err)
				}
			}

			printInfo("Listening on %s", StyleHighlight.Render(addr))
			printDetail("POST /v1/cards · GET /healthz")
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "do not serve /metrics")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")

	return cmd
}
