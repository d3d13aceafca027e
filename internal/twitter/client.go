package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const DefaultAPIURL = "https://api.twitter.com"

// ErrTweetUnavailable is returned when the API answers without tweet data,
// which it does for deleted, protected and unknown tweets.
var ErrTweetUnavailable = errors.New("tweet data unavailable")

// APIError is a non-2xx answer from the Twitter API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter API error: %d - %s", e.StatusCode, e.Body)
}

// Tweet is the subset of a v2 tweet object the tweet task needs
type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type tweetResponse struct {
	Data   *Tweet `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Client looks up tweets with an app-only bearer token. Requests are paced
// by a token bucket so bursts of verifications stay inside the API quota.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	bearerToken string
	limiter     *rate.Limiter
}

// NewClient creates a client allowing 300 lookups per 15 minutes with bursts of 10
func NewClient(baseURL, bearerToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     baseURL,
		bearerToken: bearerToken,
		limiter:     rate.NewLimiter(rate.Every(15*time.Minute/300), 10),
	}
}

// Configured reports whether a bearer token is set
func (c *Client) Configured() bool {
	return c.bearerToken != ""
}

// GetTweet fetches a single tweet with its author and creation time
func (c *Client) GetTweet(ctx context.Context, tweetID string) (*Tweet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=%s",
		c.baseURL, url.PathEscape(tweetID), url.QueryEscape("author_id,created_at,text"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tweet: %w", err)
	}
	if result.Data == nil {
		return nil, ErrTweetUnavailable
	}

	return result.Data, nil
}
