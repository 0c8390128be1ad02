package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
)

// UsersCreate creates a local account.
func (r *Runner) UsersCreate(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	username := cmd.StringArg("username")
	if username == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	store, db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	user := &models.User{Username: username, DisplayName: cmd.String("display-name")}
	if err := store.Users.Create(user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return r.writePlain("Created user %s (%s)\n", user.Username, user.ID)
}

// UsersList lists local accounts.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	store, db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := store.Users.List()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, true)
	}

	if len(users) == 0 {
		return r.writePlain("No users yet. Create one with `crate users create <username>`.\n")
	}

	for _, user := range users {
		name := user.Username
		if user.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", user.Username, user.DisplayName)
		}
		if err := r.writePlain("%s  %s  joined %s\n", user.ID, name, user.CreatedAt.Format("2006-01-02")); err != nil {
			return err
		}
	}

	return nil
}
