package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Hello ack status values.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Output kinds the capture side understands. Anything else is a protocol
// violation at the receiver.
const (
	OutputPutChars = "put_chars"
	OutputFormat   = "format"
)

// Hello is the connection-open payload: who is calling and in which mode.
// The shared cookie, when present, rides in the frame auth block.
type Hello struct {
	Caller string
	Target string
	Hidden bool
}

func (h Hello) Validate() error {
	if strings.TrimSpace(h.Caller) == "" {
		return fmt.Errorf("hello missing caller")
	}
	if strings.TrimSpace(h.Target) == "" {
		return fmt.Errorf("hello missing target")
	}
	return nil
}

// HelloAck is the node's response to a hello.
type HelloAck struct {
	Status string
	Reason string
}

func (a HelloAck) Validate() error {
	if a.Status != StatusAccepted && a.Status != StatusRejected {
		return fmt.Errorf("hello.ack invalid status %q", a.Status)
	}
	return nil
}

// Call is one remote operation: either module/function/args or a shipped
// evaluated-expression form, never both.
type Call struct {
	CallID    string
	Module    string
	Function  string
	Args      []byte
	EvalForm  []byte
	TimeoutMS uint64
}

func (c Call) Validate() error {
	if strings.TrimSpace(c.CallID) == "" {
		return fmt.Errorf("call missing call_id")
	}
	hasMF := strings.TrimSpace(c.Module) != "" && strings.TrimSpace(c.Function) != ""
	hasForm := len(c.EvalForm) > 0
	if hasMF == hasForm {
		return fmt.Errorf("call requires module/function or eval form")
	}
	return nil
}

// Output is one remote write request streamed while the call executes.
type Output struct {
	CallID     string
	Kind       string
	Text       string
	FormatArgs []byte
}

func (o Output) Validate() error {
	if strings.TrimSpace(o.CallID) == "" {
		return fmt.Errorf("output missing call_id")
	}
	if strings.TrimSpace(o.Kind) == "" {
		return fmt.Errorf("output missing kind")
	}
	return nil
}

// Result terminates one call. Rejected marks a transport-level refusal
// (unknown target, bad cookie); Value is the opaque remote term otherwise.
type Result struct {
	CallID   string
	Value    []byte
	Rejected bool
	Reason   string
}

func (r Result) Validate() error {
	if strings.TrimSpace(r.CallID) == "" {
		return fmt.Errorf("result missing call_id")
	}
	if r.Rejected && strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("rejected result missing reason")
	}
	return nil
}

func EncodeHelloFrame(messageID uint64, hello Hello, cookie []byte) ([]byte, error) {
	if err := hello.Validate(); err != nil {
		return nil, err
	}
	fields := []Field{
		NewFieldString(FieldCaller, hello.Caller),
		NewFieldString(FieldTarget, hello.Target),
		NewFieldBool(FieldHidden, hello.Hidden),
	}
	return encodeFrame(Header{MessageID: messageID, MessageType: MsgHello}, cookie, fields)
}

func DecodeHelloFrame(msg *Message) (Hello, error) {
	if err := expectType(msg, MsgHello); err != nil {
		return Hello{}, err
	}
	caller, err := requiredString(msg.Fields, FieldCaller)
	if err != nil {
		return Hello{}, err
	}
	target, err := requiredString(msg.Fields, FieldTarget)
	if err != nil {
		return Hello{}, err
	}
	hello := Hello{Caller: caller, Target: target}
	if f, ok := GetField(msg.Fields, FieldHidden); ok {
		hidden, err := f.Bool()
		if err != nil {
			return Hello{}, err
		}
		hello.Hidden = hidden
	}
	return hello, nil
}

func EncodeHelloAckFrame(messageID uint64, ack HelloAck) ([]byte, error) {
	if err := ack.Validate(); err != nil {
		return nil, err
	}
	fields := []Field{NewFieldString(FieldStatus, ack.Status)}
	if ack.Reason != "" {
		fields = append(fields, NewFieldString(FieldReason, ack.Reason))
	}
	head := Header{MessageID: messageID, MessageType: MsgHelloAck, Flags: FlagResponse}
	if ack.Status == StatusRejected {
		head.Flags |= FlagError
	}
	return encodeFrame(head, nil, fields)
}

func DecodeHelloAckFrame(msg *Message) (HelloAck, error) {
	if err := expectType(msg, MsgHelloAck); err != nil {
		return HelloAck{}, err
	}
	status, err := requiredString(msg.Fields, FieldStatus)
	if err != nil {
		return HelloAck{}, err
	}
	ack := HelloAck{Status: status}
	if f, ok := GetField(msg.Fields, FieldReason); ok {
		ack.Reason, _ = f.String()
	}
	if err := ack.Validate(); err != nil {
		return HelloAck{}, err
	}
	return ack, nil
}

func EncodeCallFrame(messageID uint64, call Call, cookie []byte) ([]byte, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	fields := []Field{NewFieldString(FieldCallID, call.CallID)}
	if call.Module != "" {
		fields = append(fields,
			NewFieldString(FieldModule, call.Module),
			NewFieldString(FieldFunction, call.Function),
		)
		if len(call.Args) > 0 {
			fields = append(fields, NewFieldBytes(FieldArgs, call.Args))
		}
	}
	if len(call.EvalForm) > 0 {
		fields = append(fields, NewFieldBytes(FieldEvalForm, call.EvalForm))
	}
	if call.TimeoutMS > 0 {
		fields = append(fields, NewFieldUint64(FieldTimeoutMS, call.TimeoutMS))
	}
	return encodeFrame(Header{MessageID: messageID, MessageType: MsgCall}, cookie, fields)
}

func DecodeCallFrame(msg *Message) (Call, error) {
	if err := expectType(msg, MsgCall); err != nil {
		return Call{}, err
	}
	callID, err := requiredString(msg.Fields, FieldCallID)
	if err != nil {
		return Call{}, err
	}
	call := Call{CallID: callID}
	if f, ok := GetField(msg.Fields, FieldModule); ok {
		call.Module, _ = f.String()
	}
	if f, ok := GetField(msg.Fields, FieldFunction); ok {
		call.Function, _ = f.String()
	}
	if f, ok := GetField(msg.Fields, FieldArgs); ok {
		call.Args, _ = f.Bytes()
	}
	if f, ok := GetField(msg.Fields, FieldEvalForm); ok {
		call.EvalForm, _ = f.Bytes()
	}
	if f, ok := GetField(msg.Fields, FieldTimeoutMS); ok {
		ms, err := f.Uint64()
		if err != nil {
			return Call{}, err
		}
		call.TimeoutMS = ms
	}
	if err := call.Validate(); err != nil {
		return Call{}, err
	}
	return call, nil
}

func EncodeOutputFrame(messageID uint64, out Output) ([]byte, error) {
	if err := out.Validate(); err != nil {
		return nil, err
	}
	fields := []Field{
		NewFieldString(FieldCallID, out.CallID),
		NewFieldString(FieldOutputKind, out.Kind),
		NewFieldString(FieldText, out.Text),
	}
	if len(out.FormatArgs) > 0 {
		fields = append(fields, NewFieldBytes(FieldFormatArgs, out.FormatArgs))
	}
	return encodeFrame(Header{MessageID: messageID, MessageType: MsgOutput}, nil, fields)
}

func DecodeOutputFrame(msg *Message) (Output, error) {
	if err := expectType(msg, MsgOutput); err != nil {
		return Output{}, err
	}
	callID, err := requiredString(msg.Fields, FieldCallID)
	if err != nil {
		return Output{}, err
	}
	kind, err := requiredString(msg.Fields, FieldOutputKind)
	if err != nil {
		return Output{}, err
	}
	out := Output{CallID: callID, Kind: kind}
	if f, ok := GetField(msg.Fields, FieldText); ok {
		out.Text, _ = f.String()
	}
	if f, ok := GetField(msg.Fields, FieldFormatArgs); ok {
		out.FormatArgs, _ = f.Bytes()
	}
	return out, nil
}

func EncodeResultFrame(messageID uint64, res Result) ([]byte, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	fields := []Field{NewFieldString(FieldCallID, res.CallID)}
	head := Header{MessageID: messageID, MessageType: MsgResult, Flags: FlagResponse}
	if res.Rejected {
		head.Flags |= FlagError
		fields = append(fields, NewFieldString(FieldReason, res.Reason))
	} else if len(res.Value) > 0 {
		fields = append(fields, NewFieldBytes(FieldValue, res.Value))
	}
	return encodeFrame(head, nil, fields)
}

func DecodeResultFrame(msg *Message) (Result, error) {
	if err := expectType(msg, MsgResult); err != nil {
		return Result{}, err
	}
	callID, err := requiredString(msg.Fields, FieldCallID)
	if err != nil {
		return Result{}, err
	}
	res := Result{CallID: callID}
	if msg.Header.Flags&FlagError != 0 {
		res.Rejected = true
		res.Reason, _ = requiredString(msg.Fields, FieldReason)
		if res.Reason == "" {
			return Result{}, fmt.Errorf("%w: %d", ErrMissingField, FieldReason)
		}
		return res, nil
	}
	if f, ok := GetField(msg.Fields, FieldValue); ok {
		res.Value, _ = f.Bytes()
	}
	return res, nil
}

func encodeFrame(head Header, auth []byte, fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	err := Encode(&buf, &Message{Header: head, AuthBlock: auth, Fields: fields})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func expectType(msg *Message, want MessageType) error {
	if msg == nil {
		return ErrTruncated
	}
	if msg.Header.MessageType != want {
		return ErrMessageTypeMismatch
	}
	return nil
}

func requiredString(fields []Field, id uint16) (string, error) {
	f, ok := GetField(fields, id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	s, err := f.String()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	return s, nil
}
