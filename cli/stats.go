package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"starcrawl/pipeline"
)

func (x *CLI) statsCommand() *cli.Command {
	var limit int

	return &cli.Command{
		Name:  "stats",
		Usage: "Print row count and the top starred repositories",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "Number of top repositories to show",
				Value:       10,
				Destination: &limit,
			},
		},
		Action: func(c *cli.Context) error {
			database, err := x.openStore()
			if err != nil {
				return err
			}
			defer database.Close()

			p := pipeline.New(database, nil, "", 0, 0)
			stats, err := p.Stats(c.Context, limit)
			if err != nil {
				return err
			}

			fmt.Printf("Total repos crawled: %d\n\n", stats.TotalRepos)
			fmt.Printf("Top %d starred repos:\n", limit)
			for _, repo := range stats.TopStarred {
				fmt.Printf("%8d  %s\n", repo.Stars, repo.NameWithOwner)
			}
			return nil
		},
	}
}
