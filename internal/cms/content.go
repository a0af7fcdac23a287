package cms

import (
	"crypto/x509"
	"fmt"

	"github.com/sensiblebit/cmsutil/internal/store"
)

// Builder accumulates the participants of a sign-and-encrypt operation.
// Signer is last-write-wins; Recipients accumulates across calls.
type Builder struct {
	signerCert *x509.Certificate
	signerKey  *store.PrivateKey
	recipients []*x509.Certificate
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Signer records the signing identity. Calling it again replaces the
// previous signer.
func (b *Builder) Signer(cert *x509.Certificate, key *store.PrivateKey) *Builder {
	b.signerCert = cert
	b.signerKey = key
	return b
}

// Recipients appends to the recipient set. Repeated calls accumulate, and
// duplicates are kept: each certificate passed here becomes its own
// RecipientInfo in the produced EnvelopedData.
func (b *Builder) Recipients(certs ...*x509.Certificate) *Builder {
	b.recipients = append(b.recipients, certs...)
	return b
}

// Build validates the accumulated state and produces an immutable Content.
// Fails with ErrMissingSigner when no signer was set (or its key handle is
// unusable), and ErrNoRecipients when the recipient set is empty.
func (b *Builder) Build() (*Content, error) {
	if b.signerCert == nil || b.signerKey == nil || b.signerKey.Signer() == nil {
		return nil, ErrMissingSigner
	}
	if len(b.recipients) == 0 {
		return nil, ErrNoRecipients
	}
	return &Content{
		signerCert: b.signerCert,
		signerKey:  b.signerKey,
		recipients: append([]*x509.Certificate(nil), b.recipients...),
	}, nil
}

// Content is the immutable context for one sign-and-encrypt operation:
// exactly one signer with a usable key, and one or more recipient
// certificates. It is consumed once by SignAndEncrypt.
type Content struct {
	signerCert *x509.Certificate
	signerKey  *store.PrivateKey
	recipients []*x509.Certificate
}

// SignerSubject returns the signer's subject DN for logging.
func (c *Content) SignerSubject() string {
	return c.signerCert.Subject.String()
}

// RecipientCount returns the number of RecipientInfo entries the produced
// EnvelopedData will carry.
func (c *Content) RecipientCount() int {
	return len(c.recipients)
}

// String implements fmt.Stringer for debug logging.
func (c *Content) String() string {
	return fmt.Sprintf("cms content: signer=%s recipients=%d", c.SignerSubject(), len(c.recipients))
}
