package cms

import (
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smallstep/pkcs7"

	"github.com/sensiblebit/cmsutil/internal/store"
)

// The content-encryption algorithm is a package global in pkcs7; set it
// once here rather than per call so concurrent encrypt operations never
// race on it.
func init() {
	pkcs7.ContentEncryptionAlgorithm = pkcs7.EncryptionAlgorithmAES256CBC
}

// SignAndEncrypt signs the message and envelopes the result: a SignedData
// structure is computed over the plaintext (embedding the signer
// certificate), then encrypted under a fresh AES-256-CBC content key that
// is wrapped once per recipient certificate. The signature covers the
// plaintext, not the envelope, so decode must decrypt before verifying.
func (c *Content) SignAndEncrypt(message []byte) ([]byte, error) {
	signed, err := pkcs7.NewSignedData(message)
	if err != nil {
		return nil, &OpError{Op: "sign", Err: err}
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed.AddSigner(c.signerCert, c.signerKey.Signer(), pkcs7.SignerInfoConfig{}); err != nil {
		return nil, &OpError{Op: "sign", Err: err}
	}
	signedDER, err := signed.Finish()
	if err != nil {
		return nil, &OpError{Op: "sign", Err: err}
	}
	slog.Debug("produced SignedData", "signer", c.SignerSubject(), "bytes", len(signedDER))

	enveloped, err := pkcs7.Encrypt(signedDER, c.recipients)
	if err != nil {
		return nil, &OpError{Op: "encrypt", Err: err}
	}
	slog.Debug("produced EnvelopedData", "recipients", len(c.recipients), "bytes", len(enveloped))
	return enveloped, nil
}

// VerifyOptions controls signature verification on decode.
type VerifyOptions struct {
	// Roots, when non-nil, makes verification also validate the signer's
	// chain to one of these roots. Nil verifies the signature against the
	// embedded signer certificate only.
	Roots *x509.CertPool
}

// DecryptAndVerify parses an enveloped message, locates the recipient key
// by trying every key-bearing identity in the store against the envelope,
// decrypts the embedded SignedData, verifies its signature, and returns the
// original plaintext. Candidate keys are acquired silently: the caller has
// already unlocked the intended recipient's key through the resolver, and
// the store reuses that session. Failures to match or unwrap are collapsed
// into one decryption error that never distinguishes "wrong key" from "no
// matching recipient".
func DecryptAndVerify(st *store.Store, data []byte, keyOpts store.KeyOptions, opts VerifyOptions) ([]byte, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, &OpError{Op: "decrypt", Err: fmt.Errorf("parsing message: %w", err)}
	}

	keyOpts.Silent = true
	var signedDER []byte
	for _, id := range st.Identities() {
		if !id.HasKey() {
			continue
		}
		key, err := st.AcquireKey(id, keyOpts)
		if err != nil {
			slog.Debug("skipping identity during recipient search", "subject", id.Subject(), "error", err)
			continue
		}
		plain, err := p7.Decrypt(id.Cert, key.Signer())
		if errors.Is(err, pkcs7.ErrNotEncryptedContent) {
			return nil, &OpError{Op: "decrypt", Err: errors.New("message is not enveloped")}
		}
		if err != nil {
			continue
		}
		slog.Debug("unwrapped content key", "recipient", id.Subject(), "provider", key.Provider())
		signedDER = plain
		break
	}
	if signedDER == nil {
		return nil, &OpError{Op: "decrypt", Err: ErrNoRecipientKey}
	}

	inner, err := pkcs7.Parse(signedDER)
	if err != nil {
		return nil, &OpError{Op: "verify", Err: fmt.Errorf("parsing SignedData: %w", err)}
	}
	if opts.Roots != nil {
		err = inner.VerifyWithChain(opts.Roots)
	} else {
		err = inner.Verify()
	}
	if err != nil {
		return nil, &OpError{Op: "verify", Err: err}
	}

	if signer := inner.GetOnlySigner(); signer != nil {
		slog.Debug("verified signature", "signer", signer.Subject.String())
	}
	return inner.Content, nil
}
