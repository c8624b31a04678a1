// Package cli wires the crawl, export and stats commands.
package cli

import (
	"context"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"starcrawl/config"
	"starcrawl/logger"
)

// CLI is the command line application.
type CLI struct {
	cfg *config.Config
}

// New creates the CLI.
func New() *CLI {
	return &CLI{cfg: config.NewConfig()}
}

// Run executes the application and returns a non-nil error on fatal
// failure; the caller maps it to a non-zero exit code.
func (x *CLI) Run(ctx context.Context, argv []string) error {
	var logLevel string

	app := &cli.App{
		Name:  "starcrawl",
		Usage: "Crawl public GitHub repository metadata into Postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level [debug|info|warn|error]",
				Aliases:     []string{"l"},
				EnvVars:     []string{"LOG_LEVEL"},
				Destination: &logLevel,
			},
		},
		Commands: []*cli.Command{
			x.crawlCommand(),
			x.exportCommand(),
			x.statsCommand(),
		},
		Before: func(c *cli.Context) error {
			if err := x.cfg.Load(); err != nil {
				return err
			}
			if logLevel == "" {
				logLevel = x.cfg.LogLevel
			}
			return logger.Initialize(logLevel)
		},
	}

	if err := app.RunContext(ctx, argv); err != nil {
		logger.Error("Fatal error", zap.Error(err))
		return err
	}
	return nil
}
