// Package ir provides the shared data model of the circuit engine: value
// kinds, configuration payloads, typed runtime values, connector and block
// definitions, placed configurations and wire references.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - The kind set is closed (see kind.go); dispatch on kind goes through
//     the codec table in typed.go
//   - Payloads are immutable once stored; helpers copy instead of mutating
//   - JSON tags follow the persisted save format (camelCase)
//   - Canonical JSON (RFC 8785 ordering, NFC strings) is the only input to
//     content hashes
package ir
