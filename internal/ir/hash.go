package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// algorithm migration.
const (
	DomainConfig = "circuit/config/v1"
	DomainEvent  = "circuit/event/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ConfigPayload converts a placed configuration into one payload table,
// the shape used for hashing and schema validation.
func ConfigPayload(cfg PlacedConfig) Table {
	out := make(Table, len(cfg))
	for name, c := range cfg {
		entry := Table{"type": String(c.Type)}
		if c.Config != nil {
			entry["config"] = c.Config
		}
		if c.ControlConfig != nil {
			entry["controlConfig"] = c.ControlConfig
		}
		out[name] = entry
	}
	return out
}

// ConfigHash returns the content hash of a placed configuration. Two
// configurations hash equal iff they are Equal after NFC normalization.
func ConfigHash(cfg PlacedConfig) (string, error) {
	canonical, err := MarshalCanonical(ConfigPayload(cfg))
	if err != nil {
		return "", fmt.Errorf("ConfigHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainConfig, canonical), nil
}

// EventHash identifies a synchronizer event by channel, target and payload.
// Tick and send order are excluded so a re-sent identical state hashes the
// same and can be deduplicated.
func EventHash(channel, target string, payload Payload) (string, error) {
	canonical, err := MarshalCanonical(Table{
		"channel": String(channel),
		"target":  String(target),
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("EventHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustConfigHash is like ConfigHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustConfigHash(cfg PlacedConfig) string {
	h, err := ConfigHash(cfg)
	if err != nil {
		panic(err)
	}
	return h
}
