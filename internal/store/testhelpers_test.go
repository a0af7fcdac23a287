package store

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func newSelfSignedCert(t *testing.T, cn string, key crypto.Signer) *x509.Certificate {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Test Org"}},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// newMemStore builds an in-memory store directly for resolver tests.
func newMemStore(container bool) *Store {
	return &Store{name: "test", container: container}
}

// plainKeyMaterial wraps a ready-to-use key.
func plainKeyMaterial(key crypto.PrivateKey) *keyMaterial {
	return &keyMaterial{provider: "software", name: "test-key", plain: key}
}

// encryptedKeyPEM encrypts a key's PKCS#1 DER under a passphrase, the form
// protected keys are stored in.
func encryptedKeyPEM(t *testing.T, key *rsa.PrivateKey, passphrase string) []byte {
	t.Helper()
	//nolint:staticcheck // legacy encrypted PEM is the protected key storage format
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY",
		x509.MarshalPKCS1PrivateKey(key), []byte(passphrase), x509.PEMCipherAES256)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(block)
}

// protectedKeyMaterial wraps encrypted key material needing a passphrase.
func protectedKeyMaterial(t *testing.T, key *rsa.PrivateKey, passphrase string) *keyMaterial {
	t.Helper()
	return &keyMaterial{provider: "software", name: "protected-key", encPEM: encryptedKeyPEM(t, key, passphrase)}
}
