package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sentinel-agent/src/contracts"
)

// defaultTimeout bounds one scoring call. Scoring is the slowest step of
// the enrichment unit, so the bound is generous but firm.
const defaultTimeout = 10 * time.Second

// Client calls a model-serving endpoint over HTTP.
// The endpoint accepts POST /score with {"features": [...]} and responds
// with {"label": 0|1, "confidence": 0.0-1.0}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a scoring client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type scoreRequest struct {
	Features []float64 `json:"features"`
}

// Score implements Scorer. Failures are classified as ErrScoring so the
// processor can contain them per message.
func (c *Client) Score(ctx context.Context, vector []float64) (Prediction, error) {
	body, err := json.Marshal(scoreRequest{Features: vector})
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: encoding features: %v", contracts.ErrScoring, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: building request: %v", contracts.ErrScoring, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", contracts.ErrScoring, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Prediction{}, fmt.Errorf("%w: model server returned %d: %s",
			contracts.ErrScoring, resp.StatusCode, payload)
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return Prediction{}, fmt.Errorf("%w: decoding response: %v", contracts.ErrScoring, err)
	}

	if prediction.Label != 0 && prediction.Label != 1 {
		return Prediction{}, fmt.Errorf("%w: model server returned label %d, want 0 or 1",
			contracts.ErrScoring, prediction.Label)
	}

	return prediction, nil
}
