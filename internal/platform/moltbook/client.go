// Package moltbook is a typed read-only client for the Moltbook feed API.
// Scraping is out of scope; the pipeline consumes whatever the feed exposes.
package moltbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"observatory/internal/logging"
)

// DefaultBaseURL is the public Moltbook API root.
const DefaultBaseURL = "https://www.moltbook.com/api/v1"

// Feed is the read surface the ingestion step consumes.
type Feed interface {
	RecentPosts(ctx context.Context, limit int) ([]APIPost, error)
	CommentsForPost(ctx context.Context, postID string) ([]APIComment, error)
	Agent(ctx context.Context, agentID string) (*APIAgent, error)
}

// Client implements Feed against the live API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Feed = (*Client)(nil)

// Config configures the feed client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a feed client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// RecentPosts fetches the newest posts, up to limit.
func (c *Client) RecentPosts(ctx context.Context, limit int) ([]APIPost, error) {
	if limit <= 0 {
		limit = 100
	}

	q := url.Values{}
	q.Set("sort", "new")
	q.Set("limit", strconv.Itoa(limit))

	var out postsResponse
	if err := c.get(ctx, "/posts?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	logging.Ingest("Fetched %d posts from feed", len(out.Posts))
	return out.Posts, nil
}

// CommentsForPost fetches the full comment tree of one post.
func (c *Client) CommentsForPost(ctx context.Context, postID string) ([]APIComment, error) {
	var out commentsResponse
	if err := c.get(ctx, "/posts/"+url.PathEscape(postID)+"/comments", &out); err != nil {
		return nil, fmt.Errorf("failed to fetch comments for %s: %w", postID, err)
	}
	return out.Comments, nil
}

// Agent fetches one account profile.
func (c *Client) Agent(ctx context.Context, agentID string) (*APIAgent, error) {
	var out agentResponse
	if err := c.get(ctx, "/agents/"+url.PathEscape(agentID), &out); err != nil {
		return nil, fmt.Errorf("failed to fetch agent %s: %w", agentID, err)
	}
	return &out.Agent, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
