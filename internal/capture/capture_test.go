package capture

import (
	"errors"
	"fmt"
	"testing"
)

func TestWriteOrderPreserved(t *testing.T) {
	sink := NewSink()
	defer sink.Close()

	for i := 0; i < 50; i++ {
		if err := sink.Write(Request{Kind: KindPutChars, Text: fmt.Sprintf("w%d;", i)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	got := sink.Flush()
	want := ""
	for i := 0; i < 50; i++ {
		want += fmt.Sprintf("w%d;", i)
	}
	if got != want {
		t.Fatalf("order mismatch:\n got=%q\nwant=%q", got, want)
	}
}

func TestFormatWriteComputesResult(t *testing.T) {
	sink := NewSink()
	defer sink.Close()

	if err := sink.Write(Request{Kind: KindFormat, Text: "pid=~s count=~p~n", Args: []any{"1234", float64(2)}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := sink.Flush(), "pid=1234 count=2\n"; got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestFlushIdempotent(t *testing.T) {
	sink := NewSink()
	defer sink.Close()

	if err := sink.Write(Request{Kind: KindPutChars, Text: "once"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := sink.Flush()
	second := sink.Flush()
	if first != "once" || second != first {
		t.Fatalf("flush not idempotent: first=%q second=%q", first, second)
	}
}

func TestUnknownKindIsProtocolViolation(t *testing.T) {
	sink := NewSink()
	defer sink.Close()

	err := sink.Write(Request{Kind: "scan_chars", Text: "x"})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestEmptyFlush(t *testing.T) {
	sink := NewSink()
	defer sink.Close()

	if got := sink.Flush(); got != "" {
		t.Fatalf("expected empty buffer, got %q", got)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	sink := NewSink()
	sink.Close()
	if err := sink.Write(Request{Kind: KindPutChars, Text: "late"}); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}

func TestRenderFormatEdgeCases(t *testing.T) {
	cases := []struct {
		format string
		args   []any
		want   string
	}{
		{"hi", nil, "hi"},
		{"~~n", nil, "~n"},
		{"tail~", nil, "tail~"},
		{"~s", nil, "~s"},
		{"~x", nil, "~x"},
		{"a~sb~pc", []any{"1", "2"}, "a1b2c"},
	}
	for _, tc := range cases {
		if got := renderFormat(tc.format, tc.args); got != tc.want {
			t.Fatalf("format=%q got=%q want=%q", tc.format, got, tc.want)
		}
	}
}
