// Package logstore provides LogManager implementations for the consensus
// driver: a volatile in-memory store and a bbolt-backed store that persists
// the replicated log and its commit cursor across restarts.
//
// The consensus layer only reads (index, term) coordinates; entry payloads
// are opaque byte slices appended by the replication path.
package logstore
