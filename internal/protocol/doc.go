// Package protocol implements the fabric call wire format: a fixed
// big-endian frame header, an optional auth block carrying the shared
// cookie, and a TLV-encoded field payload.
//
// One invocation runs on one connection: hello -> hello.ack -> call ->
// zero or more output frames -> exactly one result frame.
package protocol
