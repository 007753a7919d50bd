// Package transport defines the RPC transport contracts between consensus
// drivers: a Server accepting inbound requests for a Service, and a Provider
// handing out asynchronous per-peer clients whose handlers run on
// transport-owned goroutines.
//
// Two implementations ship with the module: loopback wires drivers of one
// process together (tests, demos), tcp speaks a length-prefixed framing with
// a pluggable serializer across machines.
package transport
