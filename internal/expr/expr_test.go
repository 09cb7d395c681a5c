package expr

import (
	"errors"
	"strings"
	"testing"
)

type bufferSink struct {
	parts []string
}

func (b *bufferSink) PutChars(text string) error {
	b.parts = append(b.parts, text)
	return nil
}

func (b *bufferSink) Format(format string, args []any) error {
	b.parts = append(b.parts, format)
	return nil
}

func TestParseArithmetic(t *testing.T) {
	form, err := Parse("1+1.")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := Eval(form, Env{}, &bufferSink{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v != int64(2) {
		t.Fatalf("got %v want 2", v)
	}
}

func TestParseAppendsTerminator(t *testing.T) {
	withDot, err := Parse("1+1.")
	if err != nil {
		t.Fatalf("parse with dot: %v", err)
	}
	withoutDot, err := Parse("1+1")
	if err != nil {
		t.Fatalf("parse without dot: %v", err)
	}
	a, _ := withDot.Marshal()
	b, _ := withoutDot.Marshal()
	if string(a) != string(b) {
		t.Fatalf("terminator handling mismatch: %s vs %s", a, b)
	}
}

func TestParsePrecedence(t *testing.T) {
	cases := []struct {
		text string
		want any
	}{
		{"1+2*3.", int64(7)},
		{"(1+2)*3.", int64(9)},
		{"10-2-3.", int64(5)},
		{"7/2.", 3.5},
		{"-4+1.", int64(-3)},
	}
	for _, tc := range cases {
		form, err := Parse(tc.text)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.text, err)
		}
		v, err := Eval(form, Env{}, &bufferSink{})
		if err != nil {
			t.Fatalf("eval %q: %v", tc.text, err)
		}
		if v != tc.want {
			t.Fatalf("%q: got %v want %v", tc.text, v, tc.want)
		}
	}
}

func TestParseSequenceYieldsLastValue(t *testing.T) {
	form, err := Parse(`io:format("hi"), 1+1.`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sink := &bufferSink{}
	v, err := Eval(form, Env{}, sink)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v != int64(2) {
		t.Fatalf("got %v want 2", v)
	}
	if len(sink.parts) != 1 || sink.parts[0] != "hi" {
		t.Fatalf("sink mismatch: %v", sink.parts)
	}
}

func TestParseErrorsCarryLineAndMessage(t *testing.T) {
	cases := []string{
		"1 +",
		"io:format(",
		"1 2.",
		`"unterminated`,
		"?.",
	}
	for _, text := range cases {
		_, err := Parse(text)
		if err == nil {
			t.Fatalf("expected parse error for %q", text)
		}
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("%q: expected *ParseError, got %T", text, err)
		}
		if parseErr.Line < 1 || parseErr.Msg == "" {
			t.Fatalf("%q: incomplete parse error: %+v", text, parseErr)
		}
		if !strings.Contains(err.Error(), "line") {
			t.Fatalf("%q: error not displayable: %v", text, err)
		}
	}
}

func TestFormWireRoundTrip(t *testing.T) {
	form, err := Parse(`io:format("x ~s", "y"), 40+2.`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := form.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := UnmarshalForm(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, err := Eval(decoded, Env{}, &bufferSink{})
	if err != nil {
		t.Fatalf("eval decoded: %v", err)
	}
	if v != int64(42) {
		t.Fatalf("got %v want 42", v)
	}
}

func TestEvalGetpid(t *testing.T) {
	form, err := Parse("os:getpid().")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := Eval(form, Env{Pid: 1234}, &bufferSink{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v != "1234" {
		t.Fatalf("got %v want textual 1234", v)
	}
}

func TestEvalErrors(t *testing.T) {
	cases := []string{
		"1/0.",
		"lists:reverse().",
		`1 + "x".`,
	}
	for _, text := range cases {
		form, err := Parse(text)
		if err != nil {
			t.Fatalf("parse %q: %v", text, err)
		}
		if _, err := Eval(form, Env{}, &bufferSink{}); err == nil {
			t.Fatalf("expected eval error for %q", text)
		}
	}
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(2), "2"},
		{float64(2), "2"},
		{2.5, "2.5"},
		{"pong", "pong"},
		{Atom("ok"), "ok"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := RenderValue(tc.in); got != tc.want {
			t.Fatalf("RenderValue(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}
