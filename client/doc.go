// Package client implements the sandgate SDK: typed sandbox, file,
// context and template operations over either the REST surface or the
// websocket stream transport.
//
// The heart of the package is the job engine used by the stream
// transport. Every dispatched job gets a fresh correlation id and an
// entry in the pending-call table; a single router goroutine demultiplexes
// inbound frames to streaming callbacks and settles each call exactly
// once, on its terminal frame, its deadline, or transport loss. Rate
// limiting, bounded retry with exponential backoff, and metrics
// collection are layered on top and shared by both transports.
package client
