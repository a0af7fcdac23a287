package cms

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"testing"

	"github.com/smallstep/pkcs7"

	"github.com/sensiblebit/cmsutil/internal/store"
)

func encodeFor(t *testing.T, message []byte, recipients ...*x509.Certificate) []byte {
	t.Helper()

	_, alice, aliceKey := newIdentityStore(t, "Alice")
	content, err := NewBuilder().Signer(alice, aliceKey).Recipients(recipients...).Build()
	if err != nil {
		t.Fatal(err)
	}
	enveloped, err := content.SignAndEncrypt(message)
	if err != nil {
		t.Fatal(err)
	}
	return enveloped
}

func TestSignEncryptDecryptVerify(t *testing.T) {
	t.Parallel()

	bobStore, bob, _ := newIdentityStore(t, "Bob")
	message := []byte("the quick brown fox")
	enveloped := encodeFor(t, message, bob)

	// The envelope is opaque: the plaintext must not appear in it.
	if bytes.Contains(enveloped, message) {
		t.Fatal("plaintext leaked into the enveloped message")
	}

	plain, err := DecryptAndVerify(bobStore, enveloped, store.KeyOptions{}, VerifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plain, message) {
		t.Fatalf("roundtrip mismatch: got %q", plain)
	}
}

func TestDecrypt_AllRecipientsCanOpen(t *testing.T) {
	t.Parallel()

	bobStore, bob, _ := newIdentityStore(t, "Bob")
	carolStore, carol, _ := newIdentityStore(t, "Carol")
	message := []byte("for both of you")

	// Bob appears twice; duplicates each get their own RecipientInfo and
	// every listed recipient can still open the message.
	enveloped := encodeFor(t, message, bob, bob, carol)

	for name, st := range map[string]*store.Store{"bob": bobStore, "carol": carolStore} {
		plain, err := DecryptAndVerify(st, enveloped, store.KeyOptions{}, VerifyOptions{})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(plain, message) {
			t.Fatalf("%s: roundtrip mismatch", name)
		}
	}
}

func TestEnvelope_RecipientInfoPerCertificate(t *testing.T) {
	t.Parallel()

	_, bob, _ := newIdentityStore(t, "Bob")
	_, carol, _ := newIdentityStore(t, "Carol")

	// Bob twice plus Carol: the envelope must carry exactly three
	// RecipientInfo entries, the duplicate included.
	enveloped := encodeFor(t, []byte("counted"), bob, bob, carol)

	var outer struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
	}
	if _, err := asn1.Unmarshal(enveloped, &outer); err != nil {
		t.Fatal(err)
	}
	if want := (asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}); !outer.ContentType.Equal(want) {
		t.Fatalf("got content type %v, want enveloped-data", outer.ContentType)
	}

	var envelope struct {
		Version              int
		RecipientInfos       []asn1.RawValue `asn1:"set"`
		EncryptedContentInfo asn1.RawValue
	}
	if _, err := asn1.Unmarshal(outer.Content.Bytes, &envelope); err != nil {
		t.Fatal(err)
	}
	if n := len(envelope.RecipientInfos); n != 3 {
		t.Fatalf("got %d RecipientInfo entries, want 3", n)
	}
}

func TestDecrypt_WrongRecipient(t *testing.T) {
	t.Parallel()

	_, bob, _ := newIdentityStore(t, "Bob")
	daveStore, _, _ := newIdentityStore(t, "Dave")
	enveloped := encodeFor(t, []byte("not for dave"), bob)

	_, err := DecryptAndVerify(daveStore, enveloped, store.KeyOptions{}, VerifyOptions{})
	if !errors.Is(err, ErrNoRecipientKey) {
		t.Fatalf("expected ErrNoRecipientKey, got %v", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "decrypt" {
		t.Fatalf("expected a decrypt OpError, got %v", err)
	}
}

func TestDecrypt_NotEnveloped(t *testing.T) {
	t.Parallel()

	bobStore, _, _ := newIdentityStore(t, "Bob")

	// A bare SignedData was never encrypted; decode must reject it rather
	// than verify it.
	_, alice, aliceKey := newIdentityStore(t, "Alice")
	signed, err := pkcs7.NewSignedData([]byte("signed only"))
	if err != nil {
		t.Fatal(err)
	}
	if err := signed.AddSigner(alice, aliceKey.Signer(), pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatal(err)
	}
	signedDER, err := signed.Finish()
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptAndVerify(bobStore, signedDER, store.KeyOptions{}, VerifyOptions{})
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "decrypt" {
		t.Fatalf("expected a decrypt OpError, got %v", err)
	}
	if errors.Is(err, ErrNoRecipientKey) {
		t.Fatal("not-enveloped input must not report a missing recipient key")
	}
}

func TestDecrypt_GarbageInput(t *testing.T) {
	t.Parallel()

	bobStore, _, _ := newIdentityStore(t, "Bob")

	_, err := DecryptAndVerify(bobStore, []byte("not asn.1 at all"), store.KeyOptions{}, VerifyOptions{})
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "decrypt" {
		t.Fatalf("expected a decrypt OpError, got %v", err)
	}
}

func TestVerify_TamperedContent(t *testing.T) {
	t.Parallel()

	bobStore, bob, _ := newIdentityStore(t, "Bob")
	_, alice, aliceKey := newIdentityStore(t, "Alice")
	message := []byte("original wording of the agreement")

	signed, err := pkcs7.NewSignedData(message)
	if err != nil {
		t.Fatal(err)
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed.AddSigner(alice, aliceKey.Signer(), pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatal(err)
	}
	signedDER, err := signed.Finish()
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte of the embedded plaintext before enveloping; the
	// signature no longer matches the content.
	idx := bytes.Index(signedDER, message)
	if idx < 0 {
		t.Fatal("plaintext not found inside SignedData")
	}
	signedDER[idx] ^= 0x01

	enveloped, err := pkcs7.Encrypt(signedDER, []*x509.Certificate{bob})
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptAndVerify(bobStore, enveloped, store.KeyOptions{}, VerifyOptions{})
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "verify" {
		t.Fatalf("expected a verify OpError, got %v", err)
	}
}

func TestVerify_UntrustedChain(t *testing.T) {
	t.Parallel()

	bobStore, bob, _ := newIdentityStore(t, "Bob")
	enveloped := encodeFor(t, []byte("chain-checked"), bob)

	// The signer is self-signed; against an empty root pool the chain
	// cannot validate even though the signature itself is good.
	_, err := DecryptAndVerify(bobStore, enveloped, store.KeyOptions{}, VerifyOptions{Roots: x509.NewCertPool()})
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "verify" {
		t.Fatalf("expected a verify OpError, got %v", err)
	}
}

func TestSignAndEncrypt_NonRSARecipient(t *testing.T) {
	t.Parallel()

	_, alice, aliceKey := newIdentityStore(t, "Alice")
	ecRecipient := newSelfSignedCert(t, "EC Recipient", newECKey(t))

	content, err := NewBuilder().Signer(alice, aliceKey).Recipients(ecRecipient).Build()
	if err != nil {
		t.Fatal(err)
	}

	// Key transport wraps the content key with RSA; an ECDSA recipient
	// certificate cannot be served.
	_, err = content.SignAndEncrypt([]byte("x"))
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "encrypt" {
		t.Fatalf("expected an encrypt OpError, got %v", err)
	}
}

func TestTrustPool(t *testing.T) {
	t.Parallel()

	for _, policy := range []string{"", "none"} {
		pool, err := TrustPool(policy)
		if err != nil {
			t.Fatal(err)
		}
		if pool != nil {
			t.Fatalf("policy %q: want nil pool", policy)
		}
	}

	pool, err := TrustPool("mozilla")
	if err != nil {
		t.Fatal(err)
	}
	if pool == nil {
		t.Fatal("mozilla policy: want non-nil pool")
	}

	if _, err := TrustPool("bogus"); err == nil {
		t.Fatal("expected error for unknown trust policy")
	}
}
