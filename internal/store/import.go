package store

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"

	ctx509 "github.com/google/certificate-transparency-go/x509"
	"github.com/smallstep/pkcs7"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/sensiblebit/cmsutil"
)

// ImportResult counts what an import ingested.
type ImportResult struct {
	Certificates int
	Keys         int
}

// ImportFile reads a file and imports its certificates and keys into a
// named store. See ImportData for the accepted formats.
func (s *Store) ImportFile(path, password string) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("reading import file: %w", err)
	}
	return s.ImportData(data, path, password)
}

// ImportData ingests certificates and private keys into a named store.
// PEM input may hold any mix of CERTIFICATE and PRIVATE KEY blocks; binary
// input is tried as DER certificate(s), PKCS#7, then PKCS#12. Encrypted PEM
// keys are stored still-encrypted and marked protected — the password is
// needed once at import to pair the key with its certificate by SKI, and
// again at every acquisition. Only named stores accept imports.
func (s *Store) ImportData(data []byte, sourcePath, password string) (ImportResult, error) {
	if s.db == nil {
		return ImportResult{}, errors.New("store is read-only (container-derived)")
	}
	if len(data) == 0 {
		return ImportResult{}, errors.New("import data is empty")
	}

	var res ImportResult
	if cmsutil.IsPEM(data) {
		slog.Debug("importing PEM data", "path", sourcePath)
		s.importPEM(data, sourcePath, password, &res)
	} else {
		slog.Debug("importing binary data", "path", sourcePath)
		if err := s.importDER(data, password, &res); err != nil {
			return res, err
		}
	}

	if res.Certificates == 0 && res.Keys == 0 {
		return res, fmt.Errorf("no certificates or keys found in %s", sourcePath)
	}
	return res, nil
}

// importPEM walks all PEM blocks, ingesting certificates and keys.
// Malformed blocks are logged and skipped.
func (s *Store) importPEM(data []byte, sourcePath, password string, res *ImportResult) {
	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch {
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				logLenientParse(block.Bytes, sourcePath, err)
				continue
			}
			if err := s.importCertificate(cert); err != nil {
				slog.Warn("skipping certificate", "path", sourcePath, "error", err)
				continue
			}
			res.Certificates++

		case block.Type == "PRIVATE KEY" || block.Type == "RSA PRIVATE KEY" ||
			block.Type == "EC PRIVATE KEY" || block.Type == "OPENSSH PRIVATE KEY":
			blockPEM := pem.EncodeToMemory(block)
			if err := s.importKeyPEM(blockPEM, password); err != nil {
				slog.Warn("skipping private key", "path", sourcePath, "error", err)
				continue
			}
			res.Keys++
		}
	}
}

// importDER tries binary formats in priority order:
// DER certificate(s) → PKCS#7 → PKCS#12.
func (s *Store) importDER(data []byte, password string, res *ImportResult) error {
	if certs, err := x509.ParseCertificates(data); err == nil && len(certs) > 0 {
		for _, cert := range certs {
			if err := s.importCertificate(cert); err != nil {
				return err
			}
			res.Certificates++
		}
		return nil
	}

	if p7, err := pkcs7.Parse(data); err == nil && len(p7.Certificates) > 0 {
		for _, cert := range p7.Certificates {
			if err := s.importCertificate(cert); err != nil {
				return err
			}
			res.Certificates++
		}
		return nil
	}

	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return fmt.Errorf("decoding PKCS#12: %w", ErrWrongPassword)
		}
		return errors.New("unrecognized binary format (not DER, PKCS#7, or PKCS#12)")
	}
	if err := s.importCertificate(leaf); err != nil {
		return err
	}
	res.Certificates++
	for _, ca := range caCerts {
		if err := s.importCertificate(ca); err != nil {
			return err
		}
		res.Certificates++
	}
	keyPEM, err := cmsutil.MarshalPrivateKeyToPEM(key)
	if err != nil {
		return fmt.Errorf("re-encoding PKCS#12 key: %w", err)
	}
	if err := s.importKeyPEM([]byte(keyPEM), ""); err != nil {
		return err
	}
	res.Keys++
	return nil
}

// importCertificate inserts one certificate row keyed by (serial, SKI).
func (s *Store) importCertificate(cert *x509.Certificate) error {
	ski, err := skiHex(cert.PublicKey)
	if err != nil {
		return err
	}
	return s.insertCertificate(certRow{
		SerialNumber:         cert.SerialNumber.String(),
		Subject:              cmsutil.SubjectString(cert),
		SubjectKeyIdentifier: ski,
		NotBefore:            cert.NotBefore,
		NotAfter:             cert.NotAfter,
		PEM:                  []byte(cmsutil.CertToPEM(cert)),
	})
}

// importKeyPEM inserts one key row. Encrypted keys keep their original PEM
// and are marked protected; the password is used only to compute the SKI.
func (s *Store) importKeyPEM(keyPEM []byte, password string) error {
	protected := cmsutil.IsEncryptedPEMKey(keyPEM)

	key, err := cmsutil.ParsePEMPrivateKeyWithPassword(keyPEM, password)
	if err != nil {
		if protected {
			return fmt.Errorf("importing a protected key needs its passphrase: %w", err)
		}
		return fmt.Errorf("parsing private key: %w", err)
	}
	pub, err := cmsutil.GetPublicKey(key)
	if err != nil {
		return err
	}
	ski, err := skiHex(pub)
	if err != nil {
		return err
	}

	stored := keyPEM
	if !protected {
		// Normalize plaintext keys to PKCS#8.
		normalized, err := cmsutil.MarshalPrivateKeyToPEM(key)
		if err != nil {
			return fmt.Errorf("re-encoding private key: %w", err)
		}
		stored = []byte(normalized)
	}

	return s.insertKey(keyRow{
		SubjectKeyIdentifier: ski,
		KeyType:              keyTypeName(key),
		PEM:                  stored,
		Protected:            protected,
	})
}

// keyTypeName returns a short algorithm name for the keys table.
func keyTypeName(key crypto.PrivateKey) string {
	switch key.(type) {
	case *rsa.PrivateKey:
		return "RSA"
	case *ecdsa.PrivateKey:
		return "ECDSA"
	case ed25519.PrivateKey, *ed25519.PrivateKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}

// logLenientParse retries a rejected certificate with the lenient
// certificate-transparency parser so the skip message can name the subject
// instead of dumping bare DER.
func logLenientParse(der []byte, sourcePath string, parseErr error) {
	if cert, _ := ctx509.ParseCertificate(der); cert != nil {
		slog.Warn("skipping certificate the standard parser rejects",
			"path", sourcePath, "subject", cert.Subject.String(), "error", parseErr)
		return
	}
	slog.Warn("skipping malformed certificate", "path", sourcePath, "error", parseErr)
}
