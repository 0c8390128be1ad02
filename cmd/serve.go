package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the web dashboard with a pool of background import workers.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		r.config.Server.Port = port
	}

	store, db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	auth := r.sessionManager(store)
	queue := tasks.NewJobQueue(store, auth, r.importEngine(store), r.config.Import.Workers, r.logger)

	srv, err := server.New(r.config, store, auth, queue, r.logger)
	if err != nil {
		return err
	}

	queue.Start(ctx)
	defer queue.Stop()

	if cmd.Bool("open") {
		url := fmt.Sprintf("http://%s:%d/", r.config.Server.Host, r.config.Server.Port)
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "url", url, "error", err)
		}
	}

	return srv.Run()
}
