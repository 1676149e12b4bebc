// Package store provides SQLite-backed persistence for circuit save slots.
//
// A slot holds:
//   - Placements: the ordered layout of one building (block id, type and
//     resolved configuration as canonical JSON with its content hash)
//   - Sync events: the synchronizer's authoritative log, appended per tick
//   - Progress: the machine's tick count and elapsed simulation time
//
// # Ordering
//
// Placements are returned by position and events by seq, never by wall
// time, so loading a slot twice yields identical machines. QueryEvents
// binds every filter value as a parameter and always orders by seq.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a slot cascades to its rows
//
// Slot files (see file.go) are the portable form of a layout:
// zstd-compressed JSON with a one-line header.
package store
