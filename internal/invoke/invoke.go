// Package invoke issues one bounded-time remote call and classifies the
// outcome, capturing every write the remote execution produces along
// the way.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/fabctl/internal/capture"
	"github.com/danmuck/fabctl/internal/fabric"
	"github.com/danmuck/fabctl/internal/identity"
	"github.com/danmuck/fabctl/internal/protocol"
)

// DefaultTimeout bounds a call when the invoker supplies none.
const DefaultTimeout = 60 * time.Second

// Operation is either a module/function/argument-list call or a shipped
// evaluated-expression form.
type Operation struct {
	Module   string
	Function string
	Args     []any
	EvalForm []byte
}

// Transform post-processes the value inside a completed outcome before
// it is reported upward. Call-site specific, never hard-coded here.
type Transform func(fabric.ResultEnvelope) (string, error)

// Request is one invocation. Constructed per call, never reused.
type Request struct {
	Target    identity.Identity
	Op        Operation
	Timeout   time.Duration
	Transform Transform
}

// Outcome is the tagged result of one invocation: either the target
// could not be reached at all, or remote code ran to completion and
// returned a value. The two are never conflated; a remote-side error
// term is still a completed call.
type Outcome struct {
	unreachable bool
	reason      string
	value       string
}

func Unreachable(reason string) Outcome {
	return Outcome{unreachable: true, reason: reason}
}

func Completed(value string) Outcome {
	return Outcome{value: value}
}

func (o Outcome) IsUnreachable() bool { return o.unreachable }
func (o Outcome) Reason() string      { return o.reason }
func (o Outcome) Value() string       { return o.value }

// Caller is the fabric call primitive the engine drives. *fabric.Node
// satisfies it.
type Caller interface {
	Call(ctx context.Context, target identity.Identity, call protocol.Call, onOutput func(protocol.Output) error) (protocol.Result, error)
}

// Engine wraps a fabric caller with timeout handling, output capture,
// and outcome classification.
type Engine struct {
	caller Caller
}

func NewEngine(caller Caller) *Engine {
	return &Engine{caller: caller}
}

// Invoke performs one remote call. The captured output string is
// produced exactly once per call and returned on every path, fatal
// errors included. A non-nil error means the invocation must abort
// (protocol violation or local failure), not that the target failed.
func (e *Engine) Invoke(ctx context.Context, req Request) (Outcome, string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sink := capture.NewSink()
	defer sink.Close()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	call, err := buildCall(req.Op, timeout)
	if err != nil {
		return Outcome{}, sink.Flush(), err
	}

	res, callErr := e.caller.Call(callCtx, req.Target, call, func(out protocol.Output) error {
		return forwardOutput(sink, out)
	})

	// The remote has either finished or been given up on; flush is the
	// synchronous hand-off with the listener and always happens.
	captured := sink.Flush()

	if callErr != nil {
		if errors.Is(callErr, capture.ErrProtocolViolation) {
			return Outcome{}, captured, callErr
		}
		return Unreachable(classifyReason(callCtx, callErr, timeout)), captured, nil
	}
	if res.Rejected {
		return Unreachable(res.Reason), captured, nil
	}

	env, err := fabric.DecodeEnvelope(res.Value)
	if err != nil {
		return Outcome{}, captured, err
	}

	value := ""
	if req.Transform != nil {
		value, err = req.Transform(env)
		if err != nil {
			return Outcome{}, captured, err
		}
	} else if env.Error != "" {
		value = env.Error
	} else {
		value = fmt.Sprintf("%v", env.Value)
	}
	return Completed(value), captured, nil
}

func buildCall(op Operation, timeout time.Duration) (protocol.Call, error) {
	call := protocol.Call{
		Module:    op.Module,
		Function:  op.Function,
		EvalForm:  op.EvalForm,
		TimeoutMS: uint64(timeout / time.Millisecond),
	}
	if len(op.Args) > 0 {
		encoded, err := json.Marshal(op.Args)
		if err != nil {
			return protocol.Call{}, fmt.Errorf("invoke: encode args: %w", err)
		}
		call.Args = encoded
	}
	return call, nil
}

// forwardOutput hands one output frame to the capture listener. Unknown
// write kinds are for the listener to reject.
func forwardOutput(sink *capture.Sink, out protocol.Output) error {
	req := capture.Request{Kind: out.Kind, Text: out.Text}
	if len(out.FormatArgs) > 0 {
		if err := json.Unmarshal(out.FormatArgs, &req.Args); err != nil {
			return fmt.Errorf("%w: malformed format args", capture.ErrProtocolViolation)
		}
	}
	return sink.Write(req)
}

func classifyReason(ctx context.Context, err error, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %s", timeout)
	}
	switch {
	case errors.Is(err, fabric.ErrTargetUnknown):
		return "target not registered on the fabric"
	case errors.Is(err, fabric.ErrHelloRejected):
		return err.Error()
	default:
		return err.Error()
	}
}
