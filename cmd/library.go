package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/crate/internal/formatter"
	"github.com/urfave/cli/v3"
)

// ImportRun fetches a user's saved albums and reconciles them into the
// local library, printing the resulting stats.
func (r *Runner) ImportRun(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))
	if cmd.IsSet("max") {
		r.config.Import.MaxAlbums = cmd.Int("max")
	}

	store, db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := r.resolveUser(store, cmd.String("user"))
	if err != nil {
		return err
	}

	client, err := r.sessionManager(store).Ensure(ctx, user.ID)
	if err != nil {
		return err
	}

	stats, err := r.importEngine(store).Run(ctx, client, user.ID)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	if err := r.writePlain("Imported %d albums for %s (%d failed)\n",
		stats.AlbumsProcessed, user.Username, stats.AlbumsFailed); err != nil {
		return err
	}
	return r.writePlain("Artists: %d linked, %d enriched, %d failed. Tracks: %d placed, %d failed.\n",
		stats.ArtistsProcessed, stats.ArtistsUpdated, stats.ArtistsFailed,
		stats.TracksProcessed, stats.TracksFailed)
}

// Export writes a user's imported library to a file in the chosen format.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	store, db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := r.resolveUser(store, cmd.String("user"))
	if err != nil {
		return err
	}

	export, err := formatter.BuildLibraryExport(store, user.ID)
	if err != nil {
		return fmt.Errorf("failed to build export: %w", err)
	}

	path, err := formatter.WriteExport(export, cmd.String("format"), cmd.String("output"))
	if err != nil {
		return err
	}

	return r.writePlain("Exported %d albums to %s\n", len(export.Albums), path)
}
