package expr

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Atom is a symbolic constant value, distinct from a string.
type Atom string

// OutputSink receives the write requests an evaluation produces. Format
// requests are shipped unrendered; the capturing side performs the
// format computation.
type OutputSink interface {
	PutChars(text string) error
	Format(format string, args []any) error
}

// Env carries the node-side facts builtins need.
type Env struct {
	Pid int
}

var errDivisionByZero = errors.New("division by zero")

// Eval evaluates a shipped form on the node. The returned value is one
// of int64, float64, string, or Atom. An error is a remote-side logical
// failure; transport classification is not this layer's concern.
func Eval(form Form, env Env, sink OutputSink) (any, error) {
	switch form.Kind {
	case KindInt:
		return form.Int, nil
	case KindFloat:
		return form.Float, nil
	case KindString:
		return form.Str, nil
	case KindAtom:
		return Atom(form.Atom), nil

	case KindSeq:
		if len(form.Items) == 0 {
			return nil, errors.New("empty sequence")
		}
		var last any
		for _, item := range form.Items {
			v, err := Eval(item, env, sink)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil

	case KindNeg:
		if len(form.Items) != 1 {
			return nil, errors.New("malformed negation")
		}
		v, err := Eval(form.Items[0], env, sink)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		default:
			return nil, fmt.Errorf("bad argument to '-': %s", RenderValue(v))
		}

	case KindBinOp:
		return evalBinOp(form, env, sink)

	case KindCall:
		return evalCall(form, env, sink)

	default:
		return nil, fmt.Errorf("unknown form kind %q", form.Kind)
	}
}

func evalBinOp(form Form, env Env, sink OutputSink) (any, error) {
	if len(form.Items) != 2 {
		return nil, errors.New("malformed operator form")
	}
	left, err := Eval(form.Items[0], env, sink)
	if err != nil {
		return nil, err
	}
	right, err := Eval(form.Items[1], env, sink)
	if err != nil {
		return nil, err
	}

	li, lOK := left.(int64)
	ri, rOK := right.(int64)
	if lOK && rOK && form.Op != "/" {
		switch form.Op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		}
	}

	lf, err := toFloat(left, form.Op)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(right, form.Op)
	if err != nil {
		return nil, err
	}
	switch form.Op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, errDivisionByZero
		}
		return lf / rf, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", form.Op)
	}
}

func toFloat(v any, op string) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("bad argument to %q: %s", op, RenderValue(v))
	}
}

func evalCall(form Form, env Env, sink OutputSink) (any, error) {
	args := make([]any, 0, len(form.Args))
	for _, argForm := range form.Args {
		v, err := Eval(argForm, env, sink)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch form.Module + ":" + form.Function {
	case "io:put_chars":
		text, err := stringArg(args, 0, "io:put_chars")
		if err != nil {
			return nil, err
		}
		if err := sink.PutChars(text); err != nil {
			return nil, err
		}
		return Atom("ok"), nil

	case "io:format":
		format, err := stringArg(args, 0, "io:format")
		if err != nil {
			return nil, err
		}
		if err := sink.Format(format, args[1:]); err != nil {
			return nil, err
		}
		return Atom("ok"), nil

	case "os:getpid":
		return strconv.Itoa(env.Pid), nil

	case "timer:sleep":
		if len(args) != 1 {
			return nil, errors.New("timer:sleep: bad arity")
		}
		ms, ok := args[0].(int64)
		if !ok || ms < 0 {
			return nil, fmt.Errorf("timer:sleep: bad argument %s", RenderValue(args[0]))
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return Atom("ok"), nil

	default:
		return nil, fmt.Errorf("undefined function %s:%s/%d", form.Module, form.Function, len(args))
	}
}

func stringArg(args []any, idx int, fn string) (string, error) {
	if idx >= len(args) {
		return "", fmt.Errorf("%s: missing argument", fn)
	}
	s, ok := args[idx].(string)
	if !ok {
		return "", fmt.Errorf("%s: bad argument %s", fn, RenderValue(args[idx]))
	}
	return s, nil
}

// RenderValue renders an evaluated value (or a JSON-decoded copy of one)
// for display: numbers bare, strings and atoms without quoting.
func RenderValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		return n
	case Atom:
		return string(n)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}
