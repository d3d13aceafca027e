package passport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultAPIURL = "https://api.passport.xyz"

// APIError is a non-2xx answer from the Passport API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("passport API error: %d - %s", e.StatusCode, e.Body)
}

// Score is a wallet's Gitcoin Passport v2 stamp score
type Score struct {
	Address      string          `json:"address"`
	Score        decimal.Decimal `json:"score"`
	Passing      bool            `json:"passing_score"`
	Threshold    decimal.Decimal `json:"threshold"`
	LastScoredAt *time.Time      `json:"last_score_timestamp"`
	Error        *string         `json:"error"`
}

// Client queries a Passport scorer
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	scorerID   string
}

func NewClient(baseURL, apiKey, scorerID string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  baseURL,
		apiKey:   apiKey,
		scorerID: scorerID,
	}
}

// Configured reports whether an API key and scorer are set
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.scorerID != ""
}

// GetScore fetches the current score of an address
func (c *Client) GetScore(ctx context.Context, address string) (*Score, error) {
	endpoint := fmt.Sprintf("%s/v2/stamps/%s/score/%s", c.baseURL, c.scorerID, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch passport score: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var score Score
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("failed to decode passport score: %w", err)
	}
	return &score, nil
}
