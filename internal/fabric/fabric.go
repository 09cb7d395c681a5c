// Package fabric joins the invocation's transient identity to the fabric
// and performs bounded-time calls against a named target node.
package fabric

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrJoinFailed    = errors.New("fabric: join failed")
	ErrTargetUnknown = errors.New("fabric: target not registered")
	ErrHelloRejected = errors.New("fabric: hello rejected")
	ErrLinkDown      = errors.New("fabric: connection lost")
)

// ResultEnvelope is the JSON payload of a result frame: either the
// evaluated value or a remote-side error description. Both are opaque to
// the caller's transport layer; a remote error is still a completed call.
type ResultEnvelope struct {
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func EncodeEnvelope(env ResultEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

func DecodeEnvelope(data []byte) (ResultEnvelope, error) {
	var env ResultEnvelope
	if len(data) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ResultEnvelope{}, fmt.Errorf("fabric: decode result envelope: %w", err)
	}
	return env, nil
}
