package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"starcrawl/logger"
	"starcrawl/models"
)

const upsertQuery = `
	INSERT INTO repos (github_id, name_with_owner, url, stars, last_crawled)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (github_id) DO UPDATE SET
		name_with_owner = EXCLUDED.name_with_owner,
		url = EXCLUDED.url,
		stars = EXCLUDED.stars,
		last_crawled = EXCLUDED.last_crawled
`

// validate rejects records that would violate the schema constraints
// before they reach the database.
func validate(repo models.Repository) error {
	if repo.GithubID == "" {
		return fmt.Errorf("%w: github_id cannot be empty", ErrInvalidInput)
	}
	if repo.NameWithOwner == "" {
		return fmt.Errorf("%w: name_with_owner cannot be empty for %s", ErrInvalidInput, repo.GithubID)
	}
	if repo.URL == "" {
		return fmt.Errorf("%w: url cannot be empty for %s", ErrInvalidInput, repo.GithubID)
	}
	if repo.Stars < 0 {
		return fmt.Errorf("%w: negative star count for %s", ErrInvalidInput, repo.GithubID)
	}
	return nil
}

// Upsert inserts a repository or, when github_id already exists, updates
// its mutable fields in place.
func (db *DB) Upsert(ctx context.Context, repo models.Repository) error {
	if err := validate(repo); err != nil {
		return err
	}

	stmt, err := db.getStmt(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if _, err := stmt.ExecContext(ctx,
		repo.GithubID, repo.NameWithOwner, repo.URL, repo.Stars, repo.LastCrawled,
	); err != nil {
		return fmt.Errorf("%w: failed to upsert repository %s: %v", ErrStore, repo.GithubID, err)
	}

	return nil
}

// UpsertMany upserts a batch of repositories in a single transaction.
func (db *DB) UpsertMany(ctx context.Context, repos []models.Repository) error {
	if len(repos) == 0 {
		return nil
	}

	for _, repo := range repos {
		if err := validate(repo); err != nil {
			return err
		}
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, repo := range repos {
		if _, err := stmt.ExecContext(ctx,
			repo.GithubID, repo.NameWithOwner, repo.URL, repo.Stars, repo.LastCrawled,
		); err != nil {
			return fmt.Errorf("%w: failed to upsert repository %s: %v", ErrStore, repo.GithubID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrTransactionFailed, err)
	}

	logger.Info("Upserted repositories", zap.Int("count", len(repos)))
	return nil
}

// ExportAll returns every stored repository ordered by descending star
// count. The github_id tiebreak keeps output deterministic.
func (db *DB) ExportAll(ctx context.Context) ([]models.Repository, error) {
	query := `
		SELECT github_id, name_with_owner, url, stars, last_crawled
		FROM repos
		ORDER BY stars DESC, github_id ASC
	`

	var repos []models.Repository
	if err := db.conn.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("%w: failed to read repositories: %v", ErrStore, err)
	}

	return repos, nil
}

// Count returns the number of stored repositories.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM repos`); err != nil {
		return 0, fmt.Errorf("%w: failed to count repositories: %v", ErrStore, err)
	}
	return count, nil
}

// TopStarred returns the limit highest-starred repositories.
func (db *DB) TopStarred(ctx context.Context, limit int) ([]models.Repository, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	query := `
		SELECT github_id, name_with_owner, url, stars, last_crawled
		FROM repos
		ORDER BY stars DESC, github_id ASC
		LIMIT $1
	`

	var repos []models.Repository
	if err := db.conn.SelectContext(ctx, &repos, query, limit); err != nil {
		return nil, fmt.Errorf("%w: failed to read top repositories: %v", ErrStore, err)
	}

	return repos, nil
}
