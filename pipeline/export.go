package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"starcrawl/logger"
)

// csvHeader is the fixed column order of the export.
var csvHeader = []string{"github_id", "name_with_owner", "url", "stars", "last_crawled"}

// ExportCSV writes every stored repository to w as CSV, ordered by
// descending star count, and returns the number of data rows written.
func (p *Pipeline) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	repos, err := p.store.ExportAll(ctx)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, repo := range repos {
		row := []string{
			repo.GithubID,
			repo.NameWithOwner,
			repo.URL,
			strconv.Itoa(repo.Stars),
			repo.LastCrawled.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("failed to write csv row for %s: %w", repo.GithubID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv output: %w", err)
	}

	logger.Info("Exported repositories", zap.Int("rows", len(repos)))
	return len(repos), nil
}
