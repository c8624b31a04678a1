package cli

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"starcrawl/db"
	"starcrawl/github"
	"starcrawl/logger"
	"starcrawl/pipeline"
	"starcrawl/retry"
)

func (x *CLI) crawlCommand() *cli.Command {
	var (
		query    string
		target   int
		pageSize int
	)

	return &cli.Command{
		Name:  "crawl",
		Usage: "Run one crawl pass against the GitHub search API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "query",
				Usage:       "GitHub search query",
				Aliases:     []string{"q"},
				EnvVars:     []string{"SEARCH_QUERY"},
				Destination: &query,
			},
			&cli.IntFlag{
				Name:        "target",
				Usage:       "Number of repositories to crawl",
				Aliases:     []string{"t"},
				EnvVars:     []string{"CRAWL_TARGET"},
				Destination: &target,
			},
			&cli.IntFlag{
				Name:        "page-size",
				Usage:       "Repositories per search page (max 100)",
				EnvVars:     []string{"PAGE_SIZE"},
				Destination: &pageSize,
			},
		},
		Action: func(c *cli.Context) error {
			if err := x.cfg.RequireToken(); err != nil {
				return err
			}
			if query == "" {
				query = x.cfg.SearchQuery
			}
			if target == 0 {
				target = x.cfg.Target
			}
			if pageSize == 0 {
				pageSize = x.cfg.PageSize
			}

			if err := db.Migrate(x.cfg.DatabaseURL); err != nil {
				return err
			}

			database, err := x.openStore()
			if err != nil {
				return err
			}
			defer database.Close()

			client := github.NewClient(x.cfg.GitHubToken, x.cfg.GraphQLURL, retry.Policy{
				MaxAttempts: x.cfg.MaxRetries,
				BaseDelay:   x.cfg.BaseDelay,
				MaxDelay:    x.cfg.MaxDelay,
			}, x.cfg.RateLimitFloor)

			p := pipeline.New(database, client, query, target, pageSize)
			result, err := p.Run(c.Context)
			if err != nil {
				return err
			}

			logger.Info("Crawl finished",
				zap.Int("pages", result.Pages),
				zap.Int("fetched", result.Fetched))
			return nil
		},
	}
}

// openStore connects to the configured database.
func (x *CLI) openStore() (*db.DB, error) {
	return db.New(x.cfg.DatabaseURL, db.Options{
		MaxOpenConns:    x.cfg.MaxOpenConns,
		MaxIdleConns:    x.cfg.MaxIdleConns,
		ConnMaxLifetime: x.cfg.ConnMaxLifetime,
	})
}
