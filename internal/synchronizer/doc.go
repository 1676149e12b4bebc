// Package synchronizer replicates computed side effects (sounds, visuals,
// particle parameters) from the authoritative evaluator to observers.
//
// The evaluator goroutine calls Send during a tick and Flush at its end.
// Sends to the same (channel, target) within one tick coalesce: Flush
// dispatches the last one whose source node is still alive, so a sender
// disabled during the tick falls back to the previous live sender or, if
// there is none, drops the target. Exact repeats of the cached state are
// suppressed and the rest is recorded in a per-channel, per-target cache.
//
// The cache answers GetExisting for observers joining late, so they
// converge to the same visible state as observers that received every
// event. Delivery to observers is best-effort and fire-and-forget.
//
// Thread-safety: one writer (the machine's tick loop), many readers
// (observer goroutines calling GetExisting, Existing and Subscribe).
package synchronizer
