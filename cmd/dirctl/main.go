// Package main provides dirctl, the directory engine tooling CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"erpdir/internal/app"
	"erpdir/internal/config"
	"erpdir/pkg/logger"
)

func main() {
	cmdline := &cli.App{
		Name:  "dirctl",
		Usage: "manage the directory database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file read before the environment",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			tokenCommand(),
			cascadeCommand(),
		},
	}

	if err := cmdline.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dirctl: %v\n", err)
		os.Exit(1)
	}
}

// env loads config and a logger and puts the logger on the command context.
func env(c *cli.Context) (context.Context, config.Config, *logger.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, cfg, nil, err
	}
	level := cfg.LogLevel
	if c.Bool("verbose") {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Development: true})
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.WithLogger(c.Context, log), cfg, log, nil
}

// open wires the services without the schema cache listener.
func open(c *cli.Context) (context.Context, *app.App, *logger.Logger, error) {
	ctx, cfg, log, err := env(c)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.SchemaCacheEnabled = false
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return ctx, a, log, nil
}
