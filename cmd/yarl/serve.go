package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/metrics"
	"github.com/YARL-project/YARL/internal/registry"
	"github.com/YARL-project/YARL/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation API",
		Long: `Starts an HTTP server with:
  POST /validate?kind=&format=&strict=   validate the request body
  GET  /reports, /reports/{id}           stored reports (needs registry.path)
  GET  /healthz, /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			logger := a.logger.With(zap.String("service", "validation"))

			var store *registry.Store
			if path := a.cfg.Registry.Path; path != "" {
				var err error
				if store, err = registry.Open(path); err != nil {
					return err
				}
				defer store.Close()
				logger.Info("storing reports", zap.String("path", path))
			}

			m := metrics.NewCollector("yarl", logger)
			v := document.NewValidator(logger)
			v.Observer = m

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			h := server.NewValidationHandler(v, store, m, logger, a.cfg.Server.MaxBodyBytes)
			return server.Serve(ctx, addr, h, a.cfg.Server, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
