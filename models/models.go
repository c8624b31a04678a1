// Package models defines the core data structures used throughout the application.
package models

import "time"

// Repository represents one crawled GitHub repository.
type Repository struct {
	GithubID      string    `db:"github_id" json:"github_id"`
	NameWithOwner string    `db:"name_with_owner" json:"name_with_owner"`
	URL           string    `db:"url" json:"url"`
	Stars         int       `db:"stars" json:"stars"`
	LastCrawled   time.Time `db:"last_crawled" json:"last_crawled"`
}

// CrawlStats summarizes the current contents of the repos table.
type CrawlStats struct {
	TotalRepos int64        `json:"total_repos"`
	TopStarred []Repository `json:"top_starred"`
}
