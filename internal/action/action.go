// Package action maps each control action onto exactly one remote
// invocation and folds the outcome into the final report.
package action

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/fabctl/internal/config"
	"github.com/danmuck/fabctl/internal/expr"
	"github.com/danmuck/fabctl/internal/fabric"
	"github.com/danmuck/fabctl/internal/identity"
	"github.com/danmuck/fabctl/internal/invoke"
	"github.com/danmuck/fabctl/internal/report"
)

// Invoker is the single-call engine contract. *invoke.Engine satisfies
// it.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (invoke.Outcome, string, error)
}

// Run performs the one action the args name against target and builds
// the report. Every path, fatal ones included, yields a report carrying
// whatever output was captured before the failure point.
func Run(ctx context.Context, inv Invoker, target identity.Identity, args config.Args) report.Report {
	req := invoke.Request{Target: target, Timeout: args.Timeout}

	switch args.Action {
	case config.ActionGetPid:
		req.Op = invoke.Operation{Module: "os", Function: "getpid"}
		req.Transform = pidTransform
	case config.ActionPing:
		req.Op = invoke.Operation{Module: "net_adm", Function: "ping", Args: []any{target.String()}}
	case config.ActionStop:
		req.Op = invoke.Operation{Module: "init", Function: "stop"}
	case config.ActionRestart:
		req.Op = invoke.Operation{Module: "init", Function: "restart"}
	case config.ActionReboot:
		req.Op = invoke.Operation{Module: "init", Function: "reboot"}
	case config.ActionEval:
		form, err := expr.Parse(args.Command)
		if err != nil {
			return report.Failure("", err.Error())
		}
		encoded, err := form.Marshal()
		if err != nil {
			return report.Failure("", err.Error())
		}
		req.Op = invoke.Operation{EvalForm: encoded}
		req.Transform = evalTransform
	default:
		return report.Failure("", fmt.Sprintf("unknown action %q", args.Action))
	}

	outcome, captured, err := inv.Invoke(ctx, req)
	if err != nil {
		return report.Failure(captured, err.Error())
	}
	if outcome.IsUnreachable() {
		if args.Action == config.ActionPing {
			return report.Failure(captured, notResponding(target))
		}
		return report.Failure(captured, outcome.Reason())
	}
	if args.Action == config.ActionPing && outcome.Value() != "pong" {
		return report.Failure(captured, notResponding(target))
	}
	return report.Success(captured, outcome.Value())
}

func notResponding(target identity.Identity) string {
	return fmt.Sprintf("Node '%s' not responding to pings.", target)
}

// pidTransform turns the textual process id the remote returns into a
// plain decimal integer. A remote-side error term passes through
// untouched; it is still a completed call.
func pidTransform(env fabric.ResultEnvelope) (string, error) {
	if env.Error != "" {
		return env.Error, nil
	}
	text := strings.TrimSpace(fmt.Sprintf("%v", env.Value))
	pid, err := strconv.Atoi(text)
	if err != nil {
		return "", fmt.Errorf("action: remote pid %q is not an integer", text)
	}
	return strconv.Itoa(pid), nil
}

// evalTransform extracts the evaluated value from the result envelope.
func evalTransform(env fabric.ResultEnvelope) (string, error) {
	if env.Error != "" {
		return env.Error, nil
	}
	return expr.RenderValue(env.Value), nil
}
