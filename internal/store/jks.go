package store

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// OpenJKS loads a Java KeyStore and presents it as a certificate store. The
// same password protects the store and its key entries (standard Java
// convention) and authenticates key access, so JKS-derived keys never take
// a PIN afterwards. A wrong password reports ErrWrongPassword; malformed
// data reports a load error. TrustedCertificateEntry aliases yield
// certificates without keys; PrivateKeyEntry aliases yield a certificate
// chain whose leaf carries the entry's key. Individual entry failures are
// logged and skipped; an error is returned only when the store itself
// cannot be loaded or contains nothing usable.
func OpenJKS(jksData []byte, password string) (*Store, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(jksData), []byte(password)); err != nil {
		// keystore-go surfaces a wrong store password as a digest mismatch
		// after the structure parses, and exports no sentinel for it.
		if strings.Contains(err.Error(), "invalid digest") {
			return nil, fmt.Errorf("loading JKS: %w", ErrWrongPassword)
		}
		return nil, fmt.Errorf("loading JKS: %w", err)
	}

	s := &Store{name: "jks", container: true}

	for _, alias := range ks.Aliases() {
		if ks.IsTrustedCertificateEntry(alias) {
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				slog.Debug("skipping JKS trusted entry", "alias", alias, "error", err)
				continue
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				slog.Debug("skipping unparseable JKS certificate", "alias", alias, "error", err)
				continue
			}
			s.add(cert, nil)
		}

		if ks.IsPrivateKeyEntry(alias) {
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
			if err != nil {
				slog.Debug("skipping JKS key entry", "alias", alias, "error", err)
				continue
			}
			key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
			if err != nil {
				slog.Debug("skipping unparseable JKS key", "alias", alias, "error", err)
				continue
			}

			for i, certEntry := range entry.CertificateChain {
				cert, err := x509.ParseCertificate(certEntry.Content)
				if err != nil {
					slog.Debug("skipping unparseable JKS chain certificate", "alias", alias, "error", err)
					continue
				}
				// The first chain entry is the entry's own certificate.
				if i == 0 {
					s.add(cert, &keyMaterial{provider: "jks", name: alias, plain: key})
				} else {
					s.add(cert, nil)
				}
			}
		}
	}

	if len(s.identities) == 0 {
		return nil, fmt.Errorf("JKS contains no usable certificates")
	}

	slog.Debug("opened JKS-derived store", "certificates", len(s.identities))
	return s, nil
}
