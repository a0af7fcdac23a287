package store

import (
	"errors"
	"fmt"
	"log/slog"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// OpenPFX decodes a PKCS#12/PFX container in memory and presents it as a
// certificate store. The supplied password (empty string permitted) both
// decrypts the container and authenticates key access, so keys from a PFX
// store never take a PIN afterwards. A wrong password reports
// ErrWrongPassword; malformed data reports a decode error.
func OpenPFX(pfxData []byte, password string) (*Store, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, fmt.Errorf("decoding PKCS#12: %w", ErrWrongPassword)
		}
		return nil, fmt.Errorf("decoding PKCS#12: %w", err)
	}

	s := &Store{name: "pkcs12", container: true}

	ski, err := skiHex(leaf.PublicKey)
	if err != nil {
		return nil, err
	}
	s.add(leaf, &keyMaterial{provider: "pkcs12", name: ski, plain: key})
	for _, ca := range caCerts {
		s.add(ca, nil)
	}

	slog.Debug("opened PFX-derived store", "certificates", len(s.identities))
	return s, nil
}
