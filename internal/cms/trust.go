package cms

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/breml/rootcerts/embedded"
)

// TrustPool builds the root pool for a named signer trust policy:
//
//	none    — nil pool; verify the signature against the embedded signer
//	          certificate only (the default)
//	system  — the operating system trust store
//	mozilla — the embedded Mozilla CA bundle
func TrustPool(policy string) (*x509.CertPool, error) {
	switch policy {
	case "", "none":
		return nil, nil
	case "system":
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("loading system trust store: %w", err)
		}
		return pool, nil
	case "mozilla":
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			return nil, errors.New("parsing embedded Mozilla root certificates")
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown trust policy %q (want none, system, or mozilla)", policy)
	}
}
