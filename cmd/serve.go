package main

import (
	"context"
	"time"

	"github.com/desertthunder/mixtape/internal/server"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tools"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Serve runs the HTTP API until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, shutdown, err := r.newEngine()
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdown(drainCtx)
	}()

	catalog, err := tools.DefaultCatalog()
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if rps := cmd.Float("rate"); rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(int(cmd.Int("burst")), 1))
	}

	logger := shared.WithLogger(r.logger, "component", "http")
	router := server.NewBasicRouter()
	router.Use(server.Recover(logger), server.Logging(logger))
	server.NewAPI(engine, catalog, r.metricsRegistry(), logger).Register(router, limiter)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	return server.ListenAndServe(ctx, server.NewHTTPServer(addr, router), logger)
}
