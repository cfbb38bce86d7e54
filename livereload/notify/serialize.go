package notify

import (
	"encoding/json"
	"fmt"
)

// Decode parses a raw frame into a generic JSON value, the form FromValue
// expects.
func Decode(frame []byte) (any, error) {
	var v any
	if err := json.Unmarshal(frame, &v); err != nil {
		return nil, fmt.Errorf("notify: decode frame: %w", err)
	}
	return v, nil
}

// Encode serialises a Notification the way the development server sends it.
func Encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

// MarshalOutcome serialises an Outcome to JSON.
func MarshalOutcome(o *Outcome) ([]byte, error) {
	return json.Marshal(o)
}

// UnmarshalOutcome deserialises an Outcome from JSON.
func UnmarshalOutcome(data []byte) (*Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
