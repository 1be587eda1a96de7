package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a Mastodon-compatible instance's search API.
type Client struct {
	host        string
	accessToken string
	httpClient  *http.Client
}

type APIError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// Status is one fediverse post. Content is raw HTML as the instance serves
// it.
type Status struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`

	RepliesCount    int `json:"replies_count"`
	ReblogsCount    int `json:"reblogs_count"`
	FavouritesCount int `json:"favourites_count"`
}

type Account struct {
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
}

type searchResponse struct {
	Statuses []Status `json:"statuses"`
}

func NewClient(httpClient *http.Client, host, accessToken string) *Client {
	if host == "" {
		host = "https://mastodon.social"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:        host,
		accessToken: accessToken,
		httpClient:  httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, nil
}

// SearchStatuses runs a full-text status search. minID restricts results to
// statuses newer than the given ID.
func (c *Client) SearchStatuses(ctx context.Context, q, minID string, limit int) ([]Status, error) {
	if q == "" {
		return nil, fmt.Errorf("query is required")
	}
	query := url.Values{}
	query.Set("q", q)
	query.Set("type", "statuses")
	query.Set("resolve", "false")
	if minID != "" {
		query.Set("min_id", minID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doRequest(ctx, "/api/v2/search", query)
	if err != nil {
		return nil, err
	}
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return parsed.Statuses, nil
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
