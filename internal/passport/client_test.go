package passport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

const testAddress = "0x52908400098527886e0f7030069857d2e4169ee7"

func TestGetScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/stamps/11722/score/"+testAddress {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-KEY"); got != "key" {
			t.Errorf("unexpected api key %q", got)
		}
		w.Write([]byte(`{"address":"` + testAddress + `","score":"24.5","passing_score":true,"threshold":"20.00000","last_score_timestamp":"2024-06-01T12:00:00Z","error":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "11722")
	if !client.Configured() {
		t.Fatal("expected client to be configured")
	}

	score, err := client.GetScore(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if !score.Score.Equal(decimal.RequireFromString("24.5")) || !score.Passing {
		t.Errorf("unexpected score %+v", score)
	}
	if !score.Threshold.Equal(decimal.NewFromInt(20)) {
		t.Errorf("unexpected threshold %s", score.Threshold)
	}
}

func TestGetScoreAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "bad", "1").GetScore(context.Background(), testAddress)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 APIError, got %v", err)
	}
}
