// Package resolver reconciles a stored, possibly partial or stale, placed
// block configuration against the block's current definition.
//
// Resolve is pure: it never mutates its inputs, never consults global
// state, and is idempotent. The only failure is a hidden connector that
// would have to resolve to unset while unset is not tolerated for it.
package resolver
