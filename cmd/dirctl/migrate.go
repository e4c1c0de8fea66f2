package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"erpdir/internal/infrastructure/storage/postgres"
	"erpdir/migrations"
)

func migrateCommand() *cli.Command {
	steps := &cli.IntFlag{
		Name:  "steps",
		Usage: "number of migrations; 0 applies all",
	}
	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "apply or revert schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{steps},
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *postgres.Migrator) error {
						return m.Up(c.Context, c.Int("steps"))
					})
				},
			},
			{
				Name:  "down",
				Usage: "revert migrations",
				Flags: []cli.Flag{steps},
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *postgres.Migrator) error {
						return m.Down(c.Context, c.Int("steps"))
					})
				},
			},
			{
				Name:  "status",
				Usage: "print the current schema version",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *postgres.Migrator) error {
						v, dirty, err := m.Version()
						if err != nil {
							return err
						}
						fmt.Printf("version %d dirty=%t\n", v, dirty)
						return nil
					})
				},
			},
			{
				Name:      "force",
				Usage:     "set the version without running migrations",
				ArgsUsage: "<version>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("force expects exactly one version")
					}
					var v int
					if _, err := fmt.Sscanf(c.Args().First(), "%d", &v); err != nil {
						return fmt.Errorf("invalid version %q", c.Args().First())
					}
					return withMigrator(c, func(m *postgres.Migrator) error {
						return m.Force(v)
					})
				},
			},
		},
	}
}

func withMigrator(c *cli.Context, fn func(m *postgres.Migrator) error) error {
	ctx, cfg, log, err := env(c)
	if err != nil {
		return err
	}
	c.Context = ctx

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer pool.Close()

	m, err := postgres.NewMigrator(pool.Pool, migrations.FS)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warnw("close migrator", "error", err)
		}
	}()
	return fn(m)
}
