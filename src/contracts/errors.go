package contracts

import "errors"

// Failure classes of the pipeline. Layers wrap these with fmt.Errorf("%w")
// and callers classify with errors.Is.
var (
	// ErrBrokerUnavailable indicates the stream broker connection is down.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrInvalidRecord indicates a record's fields cannot be serialized to
	// the wire format.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrDurability indicates persistence of an enriched alert failed.
	// The originating message stays unacknowledged.
	ErrDurability = errors.New("durability failure")
	// ErrScoring indicates the scoring capability failed or timed out.
	ErrScoring = errors.New("scoring failure")
)
