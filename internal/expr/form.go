// Package expr parses textual fabric expressions into a serializable
// executable form and evaluates shipped forms on the receiving node.
package expr

import (
	"encoding/json"
	"fmt"
)

// Form kinds.
const (
	KindSeq    = "seq"
	KindInt    = "int"
	KindFloat  = "float"
	KindString = "string"
	KindAtom   = "atom"
	KindCall   = "call"
	KindBinOp  = "binop"
	KindNeg    = "neg"
)

// Form is one node of the executable expression tree. It marshals to
// JSON for transport to the target node.
type Form struct {
	Kind     string  `json:"kind"`
	Int      int64   `json:"int,omitempty"`
	Float    float64 `json:"float,omitempty"`
	Str      string  `json:"str,omitempty"`
	Atom     string  `json:"atom,omitempty"`
	Op       string  `json:"op,omitempty"`
	Module   string  `json:"module,omitempty"`
	Function string  `json:"function,omitempty"`
	Items    []Form  `json:"items,omitempty"`
	Args     []Form  `json:"args,omitempty"`
}

// Marshal encodes the form for the wire.
func (f Form) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalForm decodes a wire-shipped form.
func UnmarshalForm(data []byte) (Form, error) {
	var f Form
	if err := json.Unmarshal(data, &f); err != nil {
		return Form{}, fmt.Errorf("expr: decode form: %w", err)
	}
	return f, nil
}

// ParseError describes a lexical or syntactic failure, suitable for
// direct display to the invoker.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
}
