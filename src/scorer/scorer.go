// Package scorer adapts the external scoring capability: a fixed-length
// feature vector in, a discrete classification out.
package scorer

import "context"

// Prediction is the scoring capability's output for one feature vector.
type Prediction struct {
	// Label is 0 for normal traffic, 1 for an anomaly.
	Label int `json:"label"`
	// Confidence is the model's confidence in the label, in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Scorer classifies a feature vector. Implementations must be safe for
// concurrent use: pool workers call Score without additional
// synchronization.
type Scorer interface {
	Score(ctx context.Context, vector []float64) (Prediction, error)
}

// Static returns a fixed prediction for every vector. Used in tests and
// for running the pipeline without a model server.
type Static struct {
	Prediction Prediction
}

// Score implements Scorer.
func (s Static) Score(ctx context.Context, vector []float64) (Prediction, error) {
	return s.Prediction, nil
}
