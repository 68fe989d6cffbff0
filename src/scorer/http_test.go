package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sentinel-agent/src/contracts"
)

func TestClientScore(t *testing.T) {
	t.Run("successful prediction", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/score" {
				t.Errorf("path = %q, want /score", r.URL.Path)
			}

			var req scoreRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decoding request: %v", err)
			}
			if len(req.Features) != 3 {
				t.Errorf("features length = %d, want 3", len(req.Features))
			}

			json.NewEncoder(w).Encode(Prediction{Label: 1, Confidence: 0.91})
		}))
		defer server.Close()

		client := NewClient(server.URL)
		prediction, err := client.Score(context.Background(), []float64{1, 2, 3})
		if err != nil {
			t.Fatalf("Score() unexpected error: %v", err)
		}
		if prediction.Label != 1 || prediction.Confidence != 0.91 {
			t.Errorf("prediction = %+v, want label 1 confidence 0.91", prediction)
		}
	})

	t.Run("server error is a scoring failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(server.URL)
		_, err := client.Score(context.Background(), []float64{0})
		if !errors.Is(err, contracts.ErrScoring) {
			t.Errorf("Score() error = %v, want ErrScoring", err)
		}
	})

	t.Run("out-of-range label rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(Prediction{Label: 7})
		}))
		defer server.Close()

		client := NewClient(server.URL)
		_, err := client.Score(context.Background(), []float64{0})
		if !errors.Is(err, contracts.ErrScoring) {
			t.Errorf("Score() error = %v, want ErrScoring", err)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1")
		_, err := client.Score(context.Background(), []float64{0})
		if !errors.Is(err, contracts.ErrScoring) {
			t.Errorf("Score() error = %v, want ErrScoring", err)
		}
	})
}
