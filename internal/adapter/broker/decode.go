package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Batch is a decoded message body.
type Batch[T any] struct {
	Records       []T
	CorrelationID string
	Source        string
}

type envelope struct {
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlation_id"`
	Source        string          `json:"source"`
}

// DecodeBatch accepts {"data": [...]}, a bare array, or a bare object. A
// bare object, and a "data" field holding an object, become a one-element
// batch.
func DecodeBatch[T any](body []byte) (Batch[T], error) {
	var batch Batch[T]

	payload := bytes.TrimSpace(body)
	if len(payload) == 0 {
		return batch, fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}

	if payload[0] == '{' {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return batch, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		batch.CorrelationID = env.CorrelationID
		batch.Source = env.Source
		if data := bytes.TrimSpace(env.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			payload = data
		}
	}

	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &batch.Records); err != nil {
			return batch, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
	case '{':
		var record T
		if err := json.Unmarshal(payload, &record); err != nil {
			return batch, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		batch.Records = []T{record}
	default:
		return batch, fmt.Errorf("%w: payload is neither an array nor an object", ErrMalformedMessage)
	}

	return batch, nil
}
