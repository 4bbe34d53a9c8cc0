package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/config"
	registrymigrate "github.com/chirino/souvenir/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import store plugins to trigger init() registration of their migrators.
	// Each store plugin registers its own migrator alongside its primary
	// interface, so importing it for its side effect is enough here.
	_ "github.com/chirino/souvenir/internal/plugin/store/postgres"
	_ "github.com/chirino/souvenir/internal/plugin/store/sqlite"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("SOUVENIR_DB_URL"),
				Usage:    "Database connection URL (sqlite path or postgres DSN)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("SOUVENIR_DATASTORE_TYPE"),
				Usage:   "Store backend (sqlite|postgres)",
				Value:   "sqlite",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.FromEnv()
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
