package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"starcrawl/logger"
	"starcrawl/models"
	"starcrawl/retry"
)

// DefaultEndpoint is the GitHub GraphQL API endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// searchQuery asks the repository search endpoint for one page of results
// plus the current rate limit window.
const searchQuery = `
query ($q: String!, $first: Int!, $after: String) {
  rateLimit {
    limit
    cost
    remaining
    resetAt
  }
  search(query: $q, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo {
      endCursor
      hasNextPage
    }
    nodes {
      ... on Repository {
        id
        nameWithOwner
        url
        stargazerCount
      }
    }
  }
}`

// RateLimit reflects the rateLimit block of a GraphQL response.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Cost      int       `json:"cost"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Page is one page of search results.
type Page struct {
	Repos           []models.Repository
	EndCursor       string // empty when the search is exhausted
	RepositoryCount int
	RateLimit       *RateLimit
}

// Client is a GitHub GraphQL search client with bounded-backoff retries.
type Client struct {
	token          string
	endpoint       string
	httpClient     *http.Client
	policy         retry.Policy
	rateLimitFloor int
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient creates a search client. rateLimitFloor is the remaining-quota
// threshold below which the client waits for the window to reset.
func NewClient(token, endpoint string, policy retry.Policy, rateLimitFloor int) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		token:    token,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		policy:         policy,
		rateLimitFloor: rateLimitFloor,
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type searchResponse struct {
	Data struct {
		RateLimit *RateLimit `json:"rateLimit"`
		Search    struct {
			RepositoryCount int `json:"repositoryCount"`
			PageInfo        struct {
				EndCursor   string `json:"endCursor"`
				HasNextPage bool   `json:"hasNextPage"`
			} `json:"pageInfo"`
			Nodes []*struct {
				ID             string `json:"id"`
				NameWithOwner  string `json:"nameWithOwner"`
				URL            string `json:"url"`
				StargazerCount int    `json:"stargazerCount"`
			} `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Search fetches one page of repository search results. The empty cursor
// requests the first page. Transient failures (429, 5xx, network errors,
// GraphQL body errors) are retried with exponential backoff; everything
// else fails immediately with a *RequestError.
func (c *Client) Search(ctx context.Context, query string, pageSize int, after string) (*Page, error) {
	var page *Page
	err := retry.Do(ctx, c.policy, func() error {
		p, err := c.fetchPage(ctx, query, pageSize, after)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.waitForQuota(ctx, page.RateLimit); err != nil {
		return nil, err
	}
	return page, nil
}

// fetchPage issues one GraphQL request. Retryable failures are returned as
// plain errors; non-retryable ones are wrapped with retry.Permanent.
func (c *Client) fetchPage(ctx context.Context, query string, pageSize int, after string) (*Page, error) {
	variables := map[string]any{
		"q":     query,
		"first": pageSize,
	}
	if after == "" {
		variables["after"] = nil
	} else {
		variables["after"] = after
	}

	body, err := json.Marshal(graphQLRequest{Query: searchQuery, Variables: variables})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Search request failed, will retry", zap.Error(err))
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyHTTPError(resp)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, retry.Permanent(&RequestError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response: %v", err),
		})
	}

	// GitHub sometimes reports rate-limit and other transient conditions
	// as body-level errors on a 200 response
	if len(decoded.Errors) > 0 {
		rateLimited := false
		for _, e := range decoded.Errors {
			if e.Type == "RATE_LIMITED" {
				rateLimited = true
			}
		}
		logger.Warn("GraphQL returned errors, will retry",
			zap.Any("errors", decoded.Errors),
			zap.Bool("rate_limited", rateLimited))
		return nil, fmt.Errorf("graphql errors: %s", decoded.Errors[0].Message)
	}

	page := &Page{
		RepositoryCount: decoded.Data.Search.RepositoryCount,
		RateLimit:       decoded.Data.RateLimit,
	}
	if decoded.Data.Search.PageInfo.HasNextPage {
		page.EndCursor = decoded.Data.Search.PageInfo.EndCursor
	}

	crawled := c.now().UTC()
	for _, node := range decoded.Data.Search.Nodes {
		// search can return null nodes occasionally
		if node == nil || node.ID == "" {
			continue
		}
		page.Repos = append(page.Repos, models.Repository{
			GithubID:      node.ID,
			NameWithOwner: node.NameWithOwner,
			URL:           node.URL,
			Stars:         node.StargazerCount,
			LastCrawled:   crawled,
		})
	}

	logger.Debug("Fetched search page",
		zap.Int("repos", len(page.Repos)),
		zap.String("end_cursor", page.EndCursor),
		zap.Int("repository_count", page.RepositoryCount))
	return page, nil
}

// classifyHTTPError decides whether a non-200 response is worth retrying.
func (c *Client) classifyHTTPError(resp *http.Response) error {
	msg := readErrorBody(resp.Body)

	rateLimited := resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")

	if rateLimited || resp.StatusCode >= http.StatusInternalServerError {
		logger.Warn("Transient HTTP error, will retry",
			zap.Int("status_code", resp.StatusCode),
			zap.Bool("rate_limited", rateLimited))
		return &RequestError{StatusCode: resp.StatusCode, Message: msg, RateLimited: rateLimited}
	}

	logger.Error("Search request failed",
		zap.Int("status_code", resp.StatusCode),
		zap.String("message", msg))
	return retry.Permanent(&RequestError{StatusCode: resp.StatusCode, Message: msg})
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}

// waitForQuota pauses until the rate limit window resets when the
// remaining quota drops below the configured floor.
func (c *Client) waitForQuota(ctx context.Context, rl *RateLimit) error {
	if rl == nil || rl.Remaining >= c.rateLimitFloor {
		return nil
	}

	wait := rl.ResetAt.Sub(c.now()) + 5*time.Second
	if wait <= 0 {
		return nil
	}

	logger.Warn("Rate limit quota low, waiting for reset",
		zap.Int("remaining", rl.Remaining),
		zap.Time("reset_at", rl.ResetAt),
		zap.Duration("wait", wait))
	return c.sleep(ctx, wait)
}
