package store

import (
	"crypto"
	"fmt"
	"log/slog"

	"github.com/sensiblebit/cmsutil"
)

// PromptFunc supplies a passphrase for a protected key. The subject of the
// certificate being unlocked is passed for display. Injected so the resolver
// is testable without a terminal; the default is TerminalPrompt.
type PromptFunc func(subject string) (string, error)

// KeyOptions controls private-key acquisition.
type KeyOptions struct {
	// Silent suppresses interactive prompts; acquisition of a protected key
	// without a PIN fails fast instead of blocking on input.
	Silent bool

	// PIN is tried first for protected keys before any prompt.
	PIN string

	// Prompt is invoked for protected keys when PIN is empty and Silent is
	// false. Nil means TerminalPrompt.
	Prompt PromptFunc
}

// PrivateKey is a store-backed key handle permitting sign and decrypt
// operations. It never exposes raw key material beyond the crypto.Signer
// interface, and is valid only while its owning Store is open.
type PrivateKey struct {
	provider string
	name     string
	signer   crypto.Signer
	pin      string
}

// Provider returns the backend holding the key ("software", "pkcs12", "jks").
func (k *PrivateKey) Provider() string { return k.provider }

// Name returns the key's name within its backend.
func (k *PrivateKey) Name() string { return k.name }

// Signer returns the signing/decryption interface for the key.
func (k *PrivateKey) Signer() crypto.Signer { return k.signer }

// SetPIN records a PIN on the handle for backends that consult it at
// operation time. Key types that do not use a PIN accept and ignore it;
// this is always a no-op success for software keys. Callers should go
// through Store.ApplyPIN, which also handles the container-store skip.
func (k *PrivateKey) SetPIN(pin string) error {
	k.pin = pin
	return nil
}

// ApplyPIN injects a PIN into an acquired key handle. For container-derived
// stores (PFX, JKS) this is skipped entirely: the container password already
// authenticated key access at open time, and applying it again would be
// redundant. Centralized here so encode and decode share one policy.
func (s *Store) ApplyPIN(k *PrivateKey, pin string) error {
	if s.container {
		slog.Debug("skipping pin injection for container-derived store", "store", s.name)
		return nil
	}
	if err := k.SetPIN(pin); err != nil {
		return fmt.Errorf("setting pin on key %s/%s: %w", k.provider, k.name, err)
	}
	slog.Debug("pin code set", "provider", k.provider, "key", k.name)
	return nil
}

// AcquireKey attempts to obtain a usable private-key handle for the
// identity. Acquisition is fallible: the certificate may have no key at all,
// or the key may be protected and the passphrase unavailable (silent mode,
// declined prompt, or wrong PIN). The returned handle is owned by the store.
func (s *Store) AcquireKey(id *Identity, opts KeyOptions) (*PrivateKey, error) {
	km := id.key
	if km == nil {
		return nil, fmt.Errorf("%s: %w", id.Subject(), ErrNoPrivateKey)
	}

	var priv crypto.PrivateKey
	switch {
	case km.plain != nil:
		priv = km.plain
	case opts.PIN != "":
		key, err := cmsutil.ParsePEMPrivateKeyWithPassword(km.encPEM, opts.PIN)
		if err != nil {
			return nil, fmt.Errorf("unlocking key %s/%s: %w", km.provider, km.name, ErrWrongPassword)
		}
		priv = key
	case opts.Silent:
		return nil, fmt.Errorf("key %s/%s: %w", km.provider, km.name, ErrSilent)
	default:
		prompt := opts.Prompt
		if prompt == nil {
			prompt = TerminalPrompt
		}
		pass, err := prompt(id.Subject())
		if err != nil {
			return nil, fmt.Errorf("prompting for key passphrase: %w", err)
		}
		key, err := cmsutil.ParsePEMPrivateKeyWithPassword(km.encPEM, pass)
		if err != nil {
			return nil, fmt.Errorf("unlocking key %s/%s: %w", km.provider, km.name, ErrWrongPassword)
		}
		priv = key
	}

	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("key %s/%s does not implement crypto.Signer (%T)", km.provider, km.name, priv)
	}
	if match, err := cmsutil.KeyMatchesCert(signer, id.Cert); err != nil || !match {
		return nil, fmt.Errorf("key %s/%s does not match certificate %s", km.provider, km.name, id.Subject())
	}

	// The store owns the unlocked session: later acquisitions of the same
	// key reuse it without another passphrase round.
	km.plain = priv

	return &PrivateKey{provider: km.provider, name: km.name, signer: signer}, nil
}

// FirstUsableKey iterates candidates in order and returns the first identity
// for which key acquisition succeeds, paired with its key handle. Remaining
// candidates are not attempted. A false result means no candidate had a
// usable key; that is not an error here — the caller translates absence
// into a NotFoundError naming the original query. Failed candidates are
// never retried; the iteration simply advances.
func (s *Store) FirstUsableKey(candidates []*Identity, opts KeyOptions) (*Identity, *PrivateKey, bool) {
	for _, id := range candidates {
		key, err := s.AcquireKey(id, opts)
		if err != nil {
			slog.Debug("skipping candidate without usable key", "subject", id.Subject(), "error", err)
			continue
		}
		return id, key, true
	}
	return nil, nil, false
}
