// Package serializer provides pluggable wire encodings for the consensus
// RPC messages: a compact hand-rolled binary format (the default), JSON for
// debuggability and gob for Go-to-Go deployments.
//
// The transport layer treats serializers as opaque ISerializer values; which
// one runs is a configuration choice, both sides of a connection must agree.
package serializer
