package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/logger"
	postgresstore "github.com/wolfeidau/crm/internal/store/postgres"
)

// MigrateCmd applies pending schema migrations using the privileged connection.
type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log
	zerolog.DefaultContextLogger = &log

	if err := c.PostgresStore.Validate(); err != nil {
		return fmt.Errorf("invalid postgres flags: %w", err)
	}

	cfg := c.PostgresStore.poolConfig(c.PostgresStore.adminConnString())
	cfg.MinConns = 1
	pool, err := postgresstore.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
