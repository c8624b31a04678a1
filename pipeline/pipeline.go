// Package pipeline drives search pages from the GitHub client into the
// store until the search is exhausted or a fatal error occurs.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"starcrawl/github"
	"starcrawl/logger"
	"starcrawl/models"
)

// Store abstracts the persistence operations needed by the pipeline
// (for testability)
type Store interface {
	UpsertMany(ctx context.Context, repos []models.Repository) error
	ExportAll(ctx context.Context) ([]models.Repository, error)
	Count(ctx context.Context) (int64, error)
	TopStarred(ctx context.Context, limit int) ([]models.Repository, error)
}

// Searcher abstracts the GitHub search client operations needed by the
// pipeline (for testability)
type Searcher interface {
	Search(ctx context.Context, query string, pageSize int, after string) (*github.Page, error)
}

// Pipeline orchestrates one crawl pass.
type Pipeline struct {
	store    Store
	searcher Searcher
	query    string
	target   int
	pageSize int
}

// Result reports what a crawl pass accomplished.
type Result struct {
	Pages   int
	Fetched int
}

// New creates a pipeline. target bounds the number of records fetched in
// one pass; zero or negative means unbounded.
func New(store Store, searcher Searcher, query string, target, pageSize int) *Pipeline {
	return &Pipeline{
		store:    store,
		searcher: searcher,
		query:    query,
		target:   target,
		pageSize: pageSize,
	}
}

// Run fetches and persists pages sequentially until the search is
// exhausted, the target is reached, or a fatal error occurs. Records
// persisted before a failure stay persisted; re-running is safe because
// upserts are idempotent.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	logger.Info("Starting crawl",
		zap.String("query", p.query),
		zap.Int("target", p.target),
		zap.Int("page_size", p.pageSize))

	result := &Result{}
	after := ""

	for {
		// Cancellation takes effect between pages
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("crawl cancelled: %w", err)
		}

		page, err := p.searcher.Search(ctx, p.query, p.pageSize, after)
		if err != nil {
			return result, fmt.Errorf("fetch failed after %d pages: %w", result.Pages, err)
		}
		result.Pages++

		repos := page.Repos
		if p.target > 0 && result.Fetched+len(repos) > p.target {
			repos = repos[:p.target-result.Fetched]
		}

		if err := p.store.UpsertMany(ctx, repos); err != nil {
			return result, fmt.Errorf("persist failed on page %d: %w", result.Pages, err)
		}
		result.Fetched += len(repos)

		logger.Info("Persisted page",
			zap.Int("page", result.Pages),
			zap.Int("records", len(repos)),
			zap.Int("total_fetched", result.Fetched))

		if p.target > 0 && result.Fetched >= p.target {
			logger.Info("Crawl target reached", zap.Int("fetched", result.Fetched))
			break
		}
		if page.EndCursor == "" {
			logger.Info("Search exhausted", zap.Int("fetched", result.Fetched))
			break
		}
		after = page.EndCursor
	}

	return result, nil
}

// Stats reports the current contents of the store.
func (p *Pipeline) Stats(ctx context.Context, topLimit int) (*models.CrawlStats, error) {
	total, err := p.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	top, err := p.store.TopStarred(ctx, topLimit)
	if err != nil {
		return nil, err
	}

	return &models.CrawlStats{TotalRepos: total, TopStarred: top}, nil
}
