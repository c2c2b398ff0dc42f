// Package collab holds the in-memory state for collaborative lab sessions:
// the process-wide session registry, per-session rosters, message and
// annotation logs, and the broadcast fan-out to connected participants.
//
// Sessions are ephemeral. A session exists in the registry exactly as long
// as it has at least one participant; the last leave (explicit or via
// disconnect) removes it. Nothing here survives a process restart.
//
// All mutating methods on Session take the session's internal mutex and
// perform their mutation and any broadcast as one atomic step, so every
// participant observes log entries in commit order regardless of how the
// runtime interleaves connection goroutines.
package collab
