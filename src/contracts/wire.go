package contracts

import (
	"encoding/json"
	"strconv"
	"time"
)

// WireVersion identifies the field mapping below. Bump it when a field is
// added, removed, or re-encoded.
const WireVersion = "1"

// Field names of wire version 1. Scalars are stringified; structured values
// (the feature vector) are JSON-encoded. Consumers must accept a scalar
// either bare or JSON-quoted, since upstream producers have emitted both.
const (
	FieldVersion         = "schema_version"
	FieldID              = "id"
	FieldSourceIP        = "source_ip"
	FieldDestinationIP   = "destination_ip"
	FieldSourcePort      = "source_port"
	FieldDestinationPort = "destination_port"
	FieldProtocol        = "protocol"
	FieldMessage         = "message"
	FieldRuleID          = "rule_id"
	FieldTimestamp       = "timestamp"
	FieldSource          = "source"
	FieldIngestedAt      = "ingested_at"
	FieldLabel           = "label"
	FieldConfidence      = "confidence"
	FieldFeatureVector   = "feature_vector"
	FieldProcessedAt     = "processed_at"
)

// Fields encodes the alert for the stream wire format.
func (a RawAlert) Fields() map[string]string {
	fields := map[string]string{
		FieldVersion:         WireVersion,
		FieldID:              a.ID,
		FieldSourceIP:        a.SourceIP,
		FieldDestinationIP:   a.DestinationIP,
		FieldSourcePort:      strconv.Itoa(a.SourcePort),
		FieldDestinationPort: strconv.Itoa(a.DestinationPort),
		FieldProtocol:        a.Protocol,
		FieldMessage:         a.Message,
		FieldSource:          a.Source,
	}
	if a.RuleID != 0 {
		fields[FieldRuleID] = strconv.FormatInt(a.RuleID, 10)
	}
	if !a.Timestamp.IsZero() {
		fields[FieldTimestamp] = a.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if !a.IngestedAt.IsZero() {
		fields[FieldIngestedAt] = a.IngestedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

// Fields encodes the enriched alert for the stream wire format.
func (a EnrichedAlert) Fields() (map[string]string, error) {
	fields := a.RawAlert.Fields()
	fields[FieldLabel] = strconv.Itoa(a.Label)
	fields[FieldConfidence] = strconv.FormatFloat(a.Confidence, 'f', -1, 64)
	fields[FieldProcessedAt] = a.ProcessedAt.UTC().Format(time.RFC3339Nano)

	vector, err := json.Marshal(a.FeatureVector)
	if err != nil {
		return nil, ErrInvalidRecord
	}
	fields[FieldFeatureVector] = string(vector)
	return fields, nil
}

// RawAlertFromFields decodes a wire field mapping into a RawAlert.
// Decoding is tolerant: a missing or malformed field yields its zero value,
// so a consumer never fails on a record produced by an older writer.
func RawAlertFromFields(fields map[string]string) RawAlert {
	return RawAlert{
		ID:              stringField(fields, FieldID),
		SourceIP:        stringField(fields, FieldSourceIP),
		DestinationIP:   stringField(fields, FieldDestinationIP),
		SourcePort:      intField(fields, FieldSourcePort),
		DestinationPort: intField(fields, FieldDestinationPort),
		Protocol:        stringField(fields, FieldProtocol),
		Message:         stringField(fields, FieldMessage),
		RuleID:          int64(intField(fields, FieldRuleID)),
		Timestamp:       timeField(fields, FieldTimestamp),
		Source:          stringField(fields, FieldSource),
		IngestedAt:      timeField(fields, FieldIngestedAt),
	}
}

// EnrichedAlertFromFields decodes a wire field mapping into an EnrichedAlert.
func EnrichedAlertFromFields(fields map[string]string) EnrichedAlert {
	return EnrichedAlert{
		RawAlert:      RawAlertFromFields(fields),
		Label:         intField(fields, FieldLabel),
		Confidence:    floatField(fields, FieldConfidence),
		FeatureVector: vectorField(fields, FieldFeatureVector),
		ProcessedAt:   timeField(fields, FieldProcessedAt),
	}
}

// stringField returns the field value, unwrapping a JSON string encoding
// if the producer quoted it.
func stringField(fields map[string]string, key string) string {
	value, ok := fields[key]
	if !ok {
		return ""
	}
	if len(value) >= 2 && value[0] == '"' {
		var decoded string
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			return decoded
		}
	}
	return value
}

func intField(fields map[string]string, key string) int {
	value := stringField(fields, key)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		// Some producers stringify ports as floats.
		if f, ferr := strconv.ParseFloat(value, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}

func floatField(fields map[string]string, key string) float64 {
	value := stringField(fields, key)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

func timeField(fields map[string]string, key string) time.Time {
	value := stringField(fields, key)
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func vectorField(fields map[string]string, key string) []float64 {
	value, ok := fields[key]
	if !ok {
		return nil
	}
	var vector []float64
	if err := json.Unmarshal([]byte(value), &vector); err != nil {
		return nil
	}
	return vector
}
