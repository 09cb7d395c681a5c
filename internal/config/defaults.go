package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults are operator-tunable knobs read from an optional
// fabctl.toml. Everything here has a working zero-config value; the
// file only overrides what it defines.
type Defaults struct {
	DiscoveryPort int
	DaemonBinary  string
	DialTimeout   time.Duration
}

type defaultsFile struct {
	DiscoveryPort int    `toml:"discovery_port"`
	DaemonBinary  string `toml:"daemon_binary"`
	DialTimeoutMS int64  `toml:"dial_timeout_ms"`
}

const (
	defaultDiscoveryPort = 4469
	defaultDialTimeout   = 5 * time.Second
)

// LoadDefaults reads the optional defaults file at path. A missing
// file yields the built-in defaults without error.
func LoadDefaults(path string) (Defaults, error) {
	defaults := Defaults{
		DiscoveryPort: defaultDiscoveryPort,
		DialTimeout:   defaultDialTimeout,
	}
	var file defaultsFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults, nil
		}
		return Defaults{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if meta.IsDefined("discovery_port") {
		if file.DiscoveryPort <= 0 || file.DiscoveryPort > 65535 {
			return Defaults{}, fmt.Errorf("%w: discovery_port %d out of range", ErrInvalid, file.DiscoveryPort)
		}
		defaults.DiscoveryPort = file.DiscoveryPort
	}
	if meta.IsDefined("daemon_binary") {
		defaults.DaemonBinary = file.DaemonBinary
	}
	if meta.IsDefined("dial_timeout_ms") {
		if file.DialTimeoutMS <= 0 {
			return Defaults{}, fmt.Errorf("%w: dial_timeout_ms must be positive", ErrInvalid)
		}
		defaults.DialTimeout = time.Duration(file.DialTimeoutMS) * time.Millisecond
	}
	return defaults, nil
}
