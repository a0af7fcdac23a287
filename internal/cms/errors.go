// Package cms composes one signer and a set of recipients into a CMS
// message that is signed then encrypted, and performs the inverse
// decrypt-then-verify transform. The CMS wire format itself is handled by
// github.com/smallstep/pkcs7.
package cms

import (
	"errors"
	"fmt"
)

// OpError wraps a failure in one pipeline operation ("sign", "encrypt",
// "decrypt", "verify") so callers can tell the stages apart with errors.As
// while the message keeps the underlying cause.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("cms %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

var (
	// ErrMissingSigner is returned by Build when no signer was set.
	ErrMissingSigner = errors.New("no signer configured")

	// ErrNoRecipients is returned by Build when the recipient set is empty.
	ErrNoRecipients = errors.New("recipient set is empty")

	// ErrNoRecipientKey is returned by DecryptAndVerify when no key in the
	// store unwraps the message. "No matching recipient" and "unwrap
	// failed" are deliberately indistinguishable here.
	ErrNoRecipientKey = errors.New("no private key in the store can decrypt this message")
)
