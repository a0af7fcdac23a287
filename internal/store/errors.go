package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound indicates the named store does not exist under the
	// configured root for its kind.
	ErrStoreNotFound = errors.New("certificate store does not exist")

	// ErrWrongPassword indicates a container or protected key rejected the
	// supplied password. Distinct from malformed-container errors.
	ErrWrongPassword = errors.New("wrong password")

	// ErrNoPrivateKey indicates the certificate has no associated private
	// key in its store.
	ErrNoPrivateKey = errors.New("no associated private key")

	// ErrSilent indicates key acquisition needed a passphrase prompt but
	// silent mode suppressed it.
	ErrSilent = errors.New("passphrase required but prompts are disabled")
)

// NotFoundError reports that an identity query matched no certificate with a
// usable private key. It carries the original query string so the user sees
// exactly what failed to resolve.
type NotFoundError struct {
	Role  string // "signer" or "recipient"
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find %s certificate for %s", e.Role, e.Query)
}
