package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/immport/internal/secrets"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	if err := r.open(); err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return nil
}

// SetupConfig writes config.toml from the embedded template, optionally with a fresh secret key.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	if cmd.Bool("with-key") {
		if err := writeSecretKey(path); err != nil {
			return err
		}
		r.logger.Info("secret key generated", "path", path)
	}

	r.writePlain("%s Config written to %s\n", palette.OK("✓"), path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Point redis.addr at your broker and review [pipeline] defaults\n")
	r.writePlain("2. Run 'immport setup database' to create the job store\n")
	return nil
}

// SetupKey prints a new secret key suitable for security.secret_key or IMMPORT_SECRET_KEY.
func (r *Runner) SetupKey(ctx context.Context, cmd *cli.Command) error {
	key, err := secrets.GenerateKey()
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", key)
}

// SetupMigrations lists migration status, or rolls back the latest migration with --rollback.
func (r *Runner) SetupMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		r.logger.Info("rolled back latest migration")
	}

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}
	for _, s := range states {
		mark := palette.Warn("pending")
		if s.Applied {
			mark = palette.OK("applied")
		}
		r.writePlain("%04d %-24s %s\n", s.Version, s.Name, mark)
	}
	return nil
}

// writeSecretKey fills the empty secret_key entry of a freshly written config file.
func writeSecretKey(path string) error {
	key, err := secrets.GenerateKey()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	updated := strings.Replace(string(data), `secret_key = ""`, fmt.Sprintf("secret_key = %q", key), 1)
	if updated == string(data) {
		return fmt.Errorf("%w: no empty secret_key entry in %s", shared.ErrInvalidConfig, path)
	}

	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
