package invoke

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/fabctl/internal/capture"
	"github.com/danmuck/fabctl/internal/fabric"
	"github.com/danmuck/fabctl/internal/identity"
	"github.com/danmuck/fabctl/internal/protocol"
)

// fakeCaller scripts one call's frames without a network.
type fakeCaller struct {
	outputs []protocol.Output
	result  protocol.Result
	err     error
	block   time.Duration
}

func (f *fakeCaller) Call(ctx context.Context, target identity.Identity, call protocol.Call, onOutput func(protocol.Output) error) (protocol.Result, error) {
	if f.block > 0 {
		select {
		case <-ctx.Done():
			return protocol.Result{}, ctx.Err()
		case <-time.After(f.block):
		}
	}
	for _, out := range f.outputs {
		out.CallID = call.CallID
		if err := onOutput(out); err != nil {
			return protocol.Result{}, err
		}
	}
	if f.err != nil {
		return protocol.Result{}, f.err
	}
	res := f.result
	res.CallID = call.CallID
	return res, nil
}

func envelope(t *testing.T, env fabric.ResultEnvelope) []byte {
	t.Helper()
	data, err := fabric.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return data
}

func TestInvokeCompletedWithCapturedOutput(t *testing.T) {
	caller := &fakeCaller{
		outputs: []protocol.Output{
			{Kind: protocol.OutputPutChars, Text: "hi"},
		},
		result: protocol.Result{Value: envelope(t, fabric.ResultEnvelope{Value: float64(2)})},
	}
	engine := NewEngine(caller)

	outcome, captured, err := engine.Invoke(context.Background(), Request{
		Op: Operation{EvalForm: []byte(`{"kind":"int","int":2}`)},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if outcome.IsUnreachable() {
		t.Fatalf("expected completed, got unreachable: %s", outcome.Reason())
	}
	if outcome.Value() != "2" {
		t.Fatalf("value=%q want 2", outcome.Value())
	}
	if captured != "hi" {
		t.Fatalf("captured=%q want hi", captured)
	}
}

func TestInvokeTimeoutIsUnreachableNeverCompleted(t *testing.T) {
	caller := &fakeCaller{
		block:  5 * time.Second,
		result: protocol.Result{Value: envelope(t, fabric.ResultEnvelope{Value: "late"})},
	}
	engine := NewEngine(caller)

	start := time.Now()
	outcome, _, err := engine.Invoke(context.Background(), Request{
		Op:      Operation{Module: "net_adm", Function: "ping"},
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
	if !outcome.IsUnreachable() {
		t.Fatalf("expected unreachable on timeout, got completed %q", outcome.Value())
	}
}

func TestInvokeUnreachableOnTargetUnknown(t *testing.T) {
	caller := &fakeCaller{err: fabric.ErrTargetUnknown}
	engine := NewEngine(caller)

	outcome, _, err := engine.Invoke(context.Background(), Request{
		Op: Operation{Module: "os", Function: "getpid"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !outcome.IsUnreachable() {
		t.Fatalf("expected unreachable")
	}
}

func TestInvokeRemoteErrorIsStillCompleted(t *testing.T) {
	caller := &fakeCaller{
		result: protocol.Result{Value: envelope(t, fabric.ResultEnvelope{Error: "undefined function x:y"})},
	}
	engine := NewEngine(caller)

	outcome, _, err := engine.Invoke(context.Background(), Request{
		Op: Operation{Module: "x", Function: "y"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if outcome.IsUnreachable() {
		t.Fatalf("remote logical failure must not classify as unreachable")
	}
	if outcome.Value() != "undefined function x:y" {
		t.Fatalf("value=%q", outcome.Value())
	}
}

func TestInvokeRejectedResultIsUnreachable(t *testing.T) {
	caller := &fakeCaller{result: protocol.Result{Rejected: true, Reason: "bad cookie"}}
	engine := NewEngine(caller)

	outcome, _, err := engine.Invoke(context.Background(), Request{
		Op: Operation{Module: "os", Function: "getpid"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !outcome.IsUnreachable() || outcome.Reason() != "bad cookie" {
		t.Fatalf("outcome=%+v", outcome)
	}
}

func TestInvokeTransformApplied(t *testing.T) {
	caller := &fakeCaller{
		result: protocol.Result{Value: envelope(t, fabric.ResultEnvelope{Value: "1234"})},
	}
	engine := NewEngine(caller)

	outcome, _, err := engine.Invoke(context.Background(), Request{
		Op: Operation{Module: "os", Function: "getpid"},
		Transform: func(env fabric.ResultEnvelope) (string, error) {
			s, ok := env.Value.(string)
			if !ok {
				return "", errors.New("unexpected pid shape")
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return "", err
			}
			return strconv.Itoa(n), nil
		},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if outcome.Value() != "1234" {
		t.Fatalf("value=%q want 1234", outcome.Value())
	}
}

func TestInvokeUnknownOutputKindIsFatal(t *testing.T) {
	caller := &fakeCaller{
		outputs: []protocol.Output{
			{Kind: protocol.OutputPutChars, Text: "early"},
			{Kind: "scan_chars", Text: "x"},
		},
		result: protocol.Result{Value: envelope(t, fabric.ResultEnvelope{Value: "ok"})},
	}
	engine := NewEngine(caller)

	_, captured, err := engine.Invoke(context.Background(), Request{
		Op: Operation{Module: "os", Function: "getpid"},
	})
	if !errors.Is(err, capture.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
	// Output gathered before the violation is still reported.
	if captured != "early" {
		t.Fatalf("captured=%q want early", captured)
	}
}
