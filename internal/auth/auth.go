// Package auth provides the shared-secret check applied to fabric
// traffic.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Cookie is the fabric shared secret. The empty cookie means the
// fabric default is in effect and every peer is accepted.
type Cookie string

// Validate checks the secret a peer presented. Comparison is
// constant-time.
func (c Cookie) Validate(presented []byte) error {
	if c == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(c), presented) != 1 {
		return ErrUnauthorized
	}
	return nil
}
