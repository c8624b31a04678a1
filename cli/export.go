package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"starcrawl/logger"
	"starcrawl/pipeline"
)

func (x *CLI) exportCommand() *cli.Command {
	var out string

	return &cli.Command{
		Name:  "export",
		Usage: "Dump the repos table to a CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Usage:       "Output CSV path",
				Aliases:     []string{"o"},
				Value:       "repos.csv",
				Destination: &out,
			},
		},
		Action: func(c *cli.Context) error {
			database, err := x.openStore()
			if err != nil {
				return err
			}
			defer database.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}

			p := pipeline.New(database, nil, "", 0, 0)
			rows, err := p.ExportCSV(c.Context, f)
			if err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			logger.Info("CSV export written",
				zap.String("path", out),
				zap.Int("rows", rows))
			return nil
		},
	}
}
