package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnreadable = errors.New("config: args file unreadable")
	ErrInvalid    = errors.New("config: args invalid")
)

// Actions accepted by the control client.
const (
	ActionGetPid  = "getpid"
	ActionPing    = "ping"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionReboot  = "reboot"
	ActionEval    = "eval"
)

const (
	NameTypeShort = "shortnames"
	NameTypeLong  = "longnames"

	DefaultTimeout = 60000 * time.Millisecond
)

// Args is the decoded invocation request handed over by the
// orchestration layer as a whitespace-delimited key=value blob.
type Args struct {
	Action   string
	Node     string
	NameType string
	Cookie   string
	Timeout  time.Duration
	Command  string
}

// LoadArgs reads and decodes the args blob at path. Values may be
// single- or double-quoted; quoted values may contain whitespace.
// Unknown keys are ignored so the blob can carry orchestration
// metadata the client does not care about.
func LoadArgs(path string) (Args, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Args{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return ParseArgs(string(data))
}

// ParseArgs decodes the raw blob text. Exposed separately so tests and
// embedders can skip the file read.
func ParseArgs(blob string) (Args, error) {
	args := Args{
		NameType: NameTypeShort,
		Timeout:  DefaultTimeout,
	}
	pairs, err := splitPairs(blob)
	if err != nil {
		return Args{}, err
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		value = unquote(value)
		switch key {
		case "action":
			args.Action = value
		case "node":
			args.Node = value
		case "nametype":
			args.NameType = value
		case "cookie":
			args.Cookie = value
		case "timeout":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ms <= 0 {
				return Args{}, fmt.Errorf("%w: timeout %q is not a positive integer", ErrInvalid, value)
			}
			args.Timeout = time.Duration(ms) * time.Millisecond
		case "command":
			args.Command = value
		}
	}
	if err := validate(args); err != nil {
		return Args{}, err
	}
	return args, nil
}

func validate(args Args) error {
	switch args.Action {
	case ActionGetPid, ActionPing, ActionStop, ActionRestart, ActionReboot:
	case ActionEval:
		if strings.TrimSpace(args.Command) == "" {
			return fmt.Errorf("%w: action eval requires command", ErrInvalid)
		}
	case "":
		return fmt.Errorf("%w: action is required", ErrInvalid)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalid, args.Action)
	}
	if strings.TrimSpace(args.Node) == "" {
		return fmt.Errorf("%w: node is required", ErrInvalid)
	}
	switch args.NameType {
	case NameTypeShort, NameTypeLong:
	default:
		return fmt.Errorf("%w: nametype must be %s or %s", ErrInvalid, NameTypeLong, NameTypeShort)
	}
	return nil
}

// splitPairs breaks the blob into key=value tokens on whitespace while
// keeping quoted runs intact, so command='two words.' survives as one
// token.
func splitPairs(blob string) ([]string, error) {
	var (
		pairs   []string
		current strings.Builder
		quote   byte
		open    bool
	)
	flush := func() {
		if current.Len() > 0 {
			pairs = append(pairs, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(blob); i++ {
		c := blob[i]
		switch {
		case open:
			current.WriteByte(c)
			if c == quote {
				open = false
			}
		case c == '\'' || c == '"':
			quote = c
			open = true
			current.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	if open {
		return nil, fmt.Errorf("%w: unterminated %c-quoted value", ErrInvalid, quote)
	}
	flush()
	return pairs, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '\'' || first == '"') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
