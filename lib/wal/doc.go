// Package wal provides the per-storage-group write-ahead log layer: a
// process-wide registry that maps a storage-group identifier to an
// ExclusiveLogNode, a bounded-wait buffer admission scheme, and a background
// task that periodically forces buffered writes to stable storage.
//
// The package focuses on:
//   - A Manager service with Start/Stop lifecycle and a lock-free node registry
//   - ExclusiveLogNode: one node per storage group and file kind, exclusively
//     owning a fixed ring of byte buffers for its registered lifetime
//   - Buffer admission with explicit backpressure: waiters poll with a fixed
//     sleep and a hard rejection deadline, the pool itself never blocks
//   - A BufferPool collaborator satisfying the Supplier/Sink contract
//
// Ownership: the Manager owns LogNode instances while they are registered. A
// node exclusively owns its attached buffers until Delete returns them to the
// caller, who returns them to the pool.
package wal
