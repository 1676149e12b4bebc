package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/circuit/internal/ir"
)

// marshalConfig converts a placed configuration to canonical JSON TEXT and
// its content hash. The hash is taken over the decoded text so explicit
// nulls hash the same after a load.
func marshalConfig(cfg ir.PlacedConfig) (string, string, error) {
	data, err := ir.MarshalCanonical(ir.ConfigPayload(cfg))
	if err != nil {
		return "", "", fmt.Errorf("marshal config: %w", err)
	}
	stored, err := unmarshalConfig(string(data))
	if err != nil {
		return "", "", err
	}
	hash, err := ir.ConfigHash(stored)
	if err != nil {
		return "", "", err
	}
	return string(data), hash, nil
}

// unmarshalConfig parses canonical JSON TEXT back into a placed
// configuration. Unknown kinds are kept; the resolver handles them.
func unmarshalConfig(data string) (ir.PlacedConfig, error) {
	if data == "" || data == "{}" {
		return ir.PlacedConfig{}, nil
	}
	var cfg ir.PlacedConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// marshalEventPayload converts an event payload to canonical JSON TEXT.
// Cleared events carry no payload and store an empty table.
func marshalEventPayload(p ir.Table) (string, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	return string(data), nil
}

func unmarshalEventPayload(data string) (ir.Table, error) {
	var t ir.Table
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}
	return t, nil
}
