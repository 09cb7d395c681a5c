package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := EncodeHelloFrame(42, Hello{Caller: "db_maint_99@host1", Target: "db@host1", Hidden: true}, []byte("sekrit"))
	if err != nil {
		t.Fatalf("encode hello: %v", err)
	}
	msg, err := Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Header.MessageID != 42 || msg.Header.MessageType != MsgHello {
		t.Fatalf("header mismatch: %+v", msg.Header)
	}
	if string(msg.AuthBlock) != "sekrit" {
		t.Fatalf("auth mismatch: %q", msg.AuthBlock)
	}
	hello, err := DecodeHelloFrame(msg)
	if err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if hello.Caller != "db_maint_99@host1" || hello.Target != "db@host1" || !hello.Hidden {
		t.Fatalf("hello mismatch: %+v", hello)
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	frame, err := EncodeHelloAckFrame(1, HelloAck{Status: StatusAccepted})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	binary.BigEndian.PutUint32(frame[0:4], 0xDEADBEEF)
	if _, err := Decode(bytes.NewReader(frame)); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	frame, err := EncodeOutputFrame(7, Output{CallID: "c1", Kind: OutputPutChars, Text: "hi"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(bytes.NewReader(frame[:len(frame)-3])); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestCallRequiresModuleFunctionOrForm(t *testing.T) {
	cases := []struct {
		name string
		call Call
		ok   bool
	}{
		{"module_function", Call{CallID: "c1", Module: "os", Function: "getpid"}, true},
		{"eval_form", Call{CallID: "c1", EvalForm: []byte(`{"kind":"int"}`)}, true},
		{"both", Call{CallID: "c1", Module: "os", Function: "getpid", EvalForm: []byte("x")}, false},
		{"neither", Call{CallID: "c1"}, false},
		{"missing_call_id", Call{Module: "os", Function: "getpid"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestResultRejectedCarriesReason(t *testing.T) {
	frame, err := EncodeResultFrame(9, Result{CallID: "c1", Rejected: true, Reason: "unknown target"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Header.Flags&FlagError == 0 {
		t.Fatalf("error flag not set")
	}
	res, err := DecodeResultFrame(msg)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Rejected || res.Reason != "unknown target" {
		t.Fatalf("result mismatch: %+v", res)
	}
}

func TestResultValueRoundTrip(t *testing.T) {
	value := []byte(`{"pid":"1234"}`)
	frame, err := EncodeResultFrame(10, Result{CallID: "c2", Value: value})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res, err := DecodeResultFrame(msg)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Rejected || !bytes.Equal(res.Value, value) {
		t.Fatalf("result mismatch: %+v", res)
	}
}
