package discovery

import (
	"context"
	"fmt"
	"math"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DaemonBinary is the executable the joiner starts when no daemon is
// reachable. It is searched for next to the running binary first, then
// on the system path.
const DaemonBinary = "fabdiscd"

// EnsureConfig controls daemon probing and startup.
type EnsureConfig struct {
	Addr         string
	BinPath      string
	StartTimeout time.Duration
	ProbeTimeout time.Duration
}

func DefaultEnsureConfig() EnsureConfig {
	return EnsureConfig{
		Addr:         fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		StartTimeout: 5 * time.Second,
		ProbeTimeout: 500 * time.Millisecond,
	}
}

// EnsureDaemon makes sure a discovery daemon is accepting on the
// configured address, starting one idempotently when none is. Failure to
// locate or start the daemon is fatal to the invocation.
func EnsureDaemon(ctx context.Context, cfg EnsureConfig) error {
	def := DefaultEnsureConfig()
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = def.Addr
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = def.StartTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}

	if probe(cfg.Addr, cfg.ProbeTimeout) {
		return nil
	}

	bin, err := locateBinary(cfg.BinPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	log.Info().Str("bin", bin).Str("addr", cfg.Addr).Msg("starting discovery daemon")
	cmd := exec.Command(bin, "-listen", cfg.Addr)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrDaemonUnavailable, bin, err)
	}
	// The daemon outlives this one-shot process.
	_ = cmd.Process.Release()

	deadline := time.Now().Add(cfg.StartTimeout)
	for attempt := 1; ; attempt++ {
		if probe(cfg.Addr, cfg.ProbeTimeout) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: daemon did not come up on %s", ErrDaemonUnavailable, cfg.Addr)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrDaemonUnavailable, ctx.Err())
		case <-time.After(nextProbeDelay(attempt)):
		}
	}
}

func probe(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// locateBinary resolves the daemon executable: explicit override first,
// then the invoking binary's own directory, then the search path.
func locateBinary(override string) (string, error) {
	if p := strings.TrimSpace(override); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("daemon binary %s: %v", p, err)
		}
		return p, nil
	}

	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), DaemonBinary)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}

	if p, err := exec.LookPath(DaemonBinary); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%s not found beside the binary or on PATH", DaemonBinary)
}

func nextProbeDelay(attempt int) time.Duration {
	const (
		initial    = 50 * time.Millisecond
		multiplier = 1.5
		max        = 500 * time.Millisecond
	)
	if attempt <= 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
