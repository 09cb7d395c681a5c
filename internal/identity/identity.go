// Package identity builds the transient local node identity and resolves
// the fully qualified target identity for one invocation.
package identity

import (
	"os"
	"strconv"
	"strings"
)

// NameMode selects how the invoker's host-domain is derived.
type NameMode string

const (
	NameModeShort NameMode = "shortnames"
	NameModeLong  NameMode = "longnames"
)

// DefaultSuffix disambiguates the maintenance identity from the target it
// controls; the invoking pid is appended after it.
const DefaultSuffix = "_maint_"

// Identity is one addressable node name on the fabric. Immutable once built.
type Identity struct {
	name string
	host string
}

func (id Identity) Name() string { return id.name }
func (id Identity) Host() string { return id.host }

// String returns the fully qualified name@host form.
func (id Identity) String() string {
	if id.host == "" {
		return id.name
	}
	return id.name + "@" + id.host
}

// Resolve derives the local identity and the target identity from one raw
// target string. A qualified target (name@host) is used as-is; an
// unqualified target inherits the invoker's own host-domain. The local
// identity is always qualified with the target's host-domain and embeds
// the invoking pid, so concurrent invocations against the same node never
// collide.
func Resolve(rawTarget, suffix string, pid int, mode NameMode) (local, target Identity) {
	trimmed := stripQuotes(strings.TrimSpace(rawTarget))
	name, host, qualified := strings.Cut(trimmed, "@")
	if !qualified || strings.TrimSpace(host) == "" {
		host = localHost(mode)
	}
	target = Identity{name: name, host: host}
	local = Identity{name: name + suffix + strconv.Itoa(pid), host: host}
	return local, target
}

// localHost resolves the invoker's host-domain: the bare host label for
// shortnames, the hostname as reported for longnames.
func localHost(mode NameMode) string {
	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "localhost"
	}
	if mode != NameModeLong {
		if label, _, ok := strings.Cut(hostname, "."); ok {
			return label
		}
	}
	return hostname
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
