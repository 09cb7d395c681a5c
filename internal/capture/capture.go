// Package capture buffers the textual output a remote execution produces
// during one call, instead of letting it leak onto the invoker's own
// output stream.
//
// A Sink is a dedicated listener goroutine that owns its buffer
// exclusively and is addressed only through message passing: write
// requests append in arrival order, a flush request hands the flattened
// buffer back synchronously. There is exactly one client per sink, so no
// locking is involved anywhere.
package capture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProtocolViolation reports a write request the listener does not
// recognize. The invocation must abort; there is no degraded capture mode.
var ErrProtocolViolation = errors.New("capture: protocol violation")

// Request is one write request. Kind selects between appending Text
// verbatim (put_chars) and performing the format computation over Args
// and appending its result (format).
type Request struct {
	Kind string
	Text string
	Args []any
}

const (
	KindPutChars = "put_chars"
	KindFormat   = "format"
)

type writeMsg struct {
	req   Request
	reply chan error
}

// Sink captures output for exactly one invocation. Create with NewSink,
// discard with Close after the final Flush.
type Sink struct {
	writes  chan writeMsg
	flushes chan chan string
	quit    chan struct{}
}

// NewSink spawns the listener goroutine.
func NewSink() *Sink {
	s := &Sink{
		writes:  make(chan writeMsg),
		flushes: make(chan chan string),
		quit:    make(chan struct{}),
	}
	go s.listen()
	return s
}

// Write hands one write request to the listener and waits for it to be
// buffered. An unrecognized kind returns ErrProtocolViolation.
func (s *Sink) Write(req Request) error {
	msg := writeMsg{req: req, reply: make(chan error, 1)}
	select {
	case s.writes <- msg:
		return <-msg.reply
	case <-s.quit:
		return errors.New("capture: sink closed")
	}
}

// Flush blocks until the listener replies with the flattened buffer.
// Flushing twice without an intervening write yields the same result.
func (s *Sink) Flush() string {
	reply := make(chan string, 1)
	select {
	case s.flushes <- reply:
		return <-reply
	case <-s.quit:
		return ""
	}
}

// Close terminates the listener. Writes arriving after Close fail.
func (s *Sink) Close() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}

func (s *Sink) listen() {
	var buf strings.Builder
	for {
		select {
		case msg := <-s.writes:
			msg.reply <- s.apply(&buf, msg.req)
		case reply := <-s.flushes:
			reply <- buf.String()
		case <-s.quit:
			return
		}
	}
}

func (s *Sink) apply(buf *strings.Builder, req Request) error {
	switch req.Kind {
	case KindPutChars:
		buf.WriteString(req.Text)
		return nil
	case KindFormat:
		buf.WriteString(renderFormat(req.Text, req.Args))
		return nil
	default:
		return fmt.Errorf("%w: unknown write kind %q", ErrProtocolViolation, req.Kind)
	}
}

// renderFormat expands the fabric control sequences: ~s and ~p consume
// one argument, ~n is a newline, ~~ a literal tilde. Unknown sequences
// and surplus placeholders pass through verbatim.
func renderFormat(format string, args []any) string {
	var out strings.Builder
	argIdx := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '~' || i+1 == len(format) {
			out.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'n':
			out.WriteByte('\n')
		case '~':
			out.WriteByte('~')
		case 's', 'p', 'w':
			if argIdx < len(args) {
				out.WriteString(formatArg(args[argIdx]))
				argIdx++
			} else {
				out.WriteByte('~')
				out.WriteByte(format[i])
			}
		default:
			out.WriteByte('~')
			out.WriteByte(format[i])
		}
	}
	return out.String()
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
