package cms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/sensiblebit/cmsutil/internal/store"
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

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// newIdentityStore builds a single-identity store around a fresh RSA keypair,
// going through the PKCS#12 path so the key handle comes from a real store.
func newIdentityStore(t *testing.T, cn string) (*store.Store, *x509.Certificate, *store.PrivateKey) {
	t.Helper()

	key := newRSAKey(t)
	cert := newSelfSignedCert(t, cn, key)
	data, err := pkcs12.Modern.Encode(key, cert, nil, "test")
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.OpenPFX(data, "test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	id, handle, ok := st.FirstUsableKey(st.Identities(), store.KeyOptions{Silent: true})
	if !ok {
		t.Fatal("store has no usable key")
	}
	return st, id.Cert, handle
}
