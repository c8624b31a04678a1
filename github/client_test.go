package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starcrawl/logger"
	"starcrawl/retry"
)

func init() {
	// Initialize logger for tests
	_ = logger.Initialize("debug")
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

func newTestClient(endpoint string) *Client {
	c := NewClient("test-token", endpoint, testPolicy(), 10)
	c.now = func() time.Time { return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC) }
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func searchBody(remaining int, hasNext bool, cursor string, nodes ...map[string]any) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"rateLimit": map[string]any{
				"limit":     5000,
				"cost":      1,
				"remaining": remaining,
				"resetAt":   "2026-08-23T13:00:00Z",
			},
			"search": map[string]any{
				"repositoryCount": len(nodes),
				"pageInfo": map[string]any{
					"endCursor":   cursor,
					"hasNextPage": hasNext,
				},
				"nodes": nodes,
			},
		},
	}
}

func repoNode(id, name string, stars int) map[string]any {
	return map[string]any{
		"id":             id,
		"nameWithOwner":  name,
		"url":            "https://github.com/" + name,
		"stargazerCount": stars,
	}
}

func TestSearchParsesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "is:public", req.Variables["q"])
		assert.Equal(t, float64(100), req.Variables["first"])
		assert.Nil(t, req.Variables["after"])

		json.NewEncoder(w).Encode(searchBody(4999, true, "c1",
			repoNode("R1", "octocat/hello-world", 10),
			nil, // search can return null nodes
			repoNode("R2", "octocat/spoon-knife", 3),
		))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.Search(context.Background(), "is:public", 100, "")

	require.NoError(t, err)
	require.Len(t, page.Repos, 2)
	assert.Equal(t, "R1", page.Repos[0].GithubID)
	assert.Equal(t, "octocat/hello-world", page.Repos[0].NameWithOwner)
	assert.Equal(t, "https://github.com/octocat/hello-world", page.Repos[0].URL)
	assert.Equal(t, 10, page.Repos[0].Stars)
	assert.Equal(t, time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC), page.Repos[0].LastCrawled)
	assert.Equal(t, "c1", page.EndCursor)
	require.NotNil(t, page.RateLimit)
	assert.Equal(t, 4999, page.RateLimit.Remaining)
}

func TestSearchExhaustedCursorIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchBody(4999, false, "c-final",
			repoNode("R1", "octocat/hello-world", 10)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.Search(context.Background(), "is:public", 100, "")

	require.NoError(t, err)
	assert.Empty(t, page.EndCursor)
}

func TestSearchSendsCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req.Variables["after"])

		json.NewEncoder(w).Encode(searchBody(4999, false, ""))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Search(context.Background(), "is:public", 100, "c1")
	assert.NoError(t, err)
}

func TestSearchRetriesTransientErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		headers    map[string]string
	}{
		{name: "rate limited 429", statusCode: http.StatusTooManyRequests},
		{name: "rate limited 403", statusCode: http.StatusForbidden, headers: map[string]string{"X-RateLimit-Remaining": "0"}},
		{name: "bad gateway", statusCode: http.StatusBadGateway},
		{name: "service unavailable", statusCode: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					for k, v := range tc.headers {
						w.Header().Set(k, v)
					}
					w.WriteHeader(tc.statusCode)
					return
				}
				json.NewEncoder(w).Encode(searchBody(4999, false, "",
					repoNode("R1", "octocat/hello-world", 10)))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			page, err := client.Search(context.Background(), "is:public", 100, "")

			require.NoError(t, err)
			assert.Equal(t, int32(2), calls.Load())
			assert.Len(t, page.Repos, 1)
		})
	}
}

func TestSearchRetriesGraphQLBodyErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`)
			return
		}
		json.NewEncoder(w).Encode(searchBody(4999, false, "",
			repoNode("R1", "octocat/hello-world", 10)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.Search(context.Background(), "is:public", 100, "")

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, page.Repos, 1)
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "bad credentials")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Search(context.Background(), "is:public", 100, "")

	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.False(t, reqErr.RateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Search(context.Background(), "is:public", 100, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchWaitsWhenQuotaLow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchBody(3, false, "",
			repoNode("R1", "octocat/hello-world", 10)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	var slept time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	_, err := client.Search(context.Background(), "is:public", 100, "")
	require.NoError(t, err)
	// reset is one hour out from the fixed clock, plus the safety margin
	assert.Equal(t, time.Hour+5*time.Second, slept)
}
