// Package discovery implements the fabric name-registration daemon and
// its client: a loopback TCP service mapping node names to call ports,
// spoken as one JSON request and one JSON response per line.
package discovery

import "errors"

// DefaultPort is the loopback port the daemon listens on.
const DefaultPort = 4469

var (
	ErrDaemonUnavailable = errors.New("discovery: daemon not found or not startable")
	ErrNameConflict      = errors.New("discovery: name already registered")
	ErrNotFound          = errors.New("discovery: name not registered")
)

// Ops accepted by the daemon.
const (
	opRegister   = "register"
	opDeregister = "deregister"
	opLookup     = "lookup"
	opNames      = "names"
)

// request is one client action envelope.
type request struct {
	Op     string `json:"op"`
	Name   string `json:"name,omitempty"`
	Port   int    `json:"port,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// response is one daemon result envelope.
type response struct {
	OK      bool    `json:"ok"`
	Error   string  `json:"error,omitempty"`
	Port    int     `json:"port,omitempty"`
	Entries []Entry `json:"entries,omitempty"`
}

// Entry is one registered node.
type Entry struct {
	Name   string `json:"name"`
	Port   int    `json:"port"`
	Hidden bool   `json:"hidden,omitempty"`
}
