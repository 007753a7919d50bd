// Package consensus implements the node-local control loop that drives
// leadership in a storage-group cluster: a single long-lived goroutine that,
// depending on the node's current character (Leader, Follower or Elector),
// broadcasts heartbeats, watches for heartbeat staleness, or runs
// randomized-timeout elections requiring a strict majority.
//
// The package focuses on:
//   - The Driver service with the leader/follower/elector switch loop
//   - Election rounds serialized under the term lock, with cooperative
//     termination and discarded stale votes
//   - Heartbeats carrying identifier assignment, identifier-conflict
//     resolution and membership push to blind nodes
//   - The vote and heartbeat reply handlers invoked on transport-owned
//     goroutines
//
// Transport, clock and log metadata are collaborator contracts (Client,
// Clock, LogManager); the driver treats log contents as opaque and only
// compares (index, term) coordinates.
package consensus
