// Package store implements the cmsutil certificate store: named persistent
// SQLite-backed stores per kind (user, machine, service), and in-memory
// stores derived from PFX/PKCS#12 or JKS containers. A Store owns every
// Identity and PrivateKey it yields; derived handles are valid only while
// the Store is open.
package store

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sensiblebit/cmsutil"
)

// Kind selects which configured root a named store is opened under.
type Kind string

const (
	KindUser    Kind = "user"
	KindMachine Kind = "machine"
	KindService Kind = "service"
)

// ParseKind converts a flag value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindUser, KindMachine, KindService:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown store type %q (want user, machine, or service)", s)
	}
}

// keyMaterial is the store-side record of a private key. Either plain holds
// a ready-to-use key, or encPEM holds PEM material that needs a passphrase.
type keyMaterial struct {
	provider string // backend that holds the key: "software", "pkcs12", "jks"
	name     string // key name within the backend (SKI hex or container alias)
	plain    crypto.PrivateKey
	encPEM   []byte
}

// Identity is one certificate in a store, with an optional reference to its
// private-key material. Identities are owned by their Store and must not be
// used after the Store is closed.
type Identity struct {
	Cert *x509.Certificate

	store *Store
	key   *keyMaterial
}

// Subject returns the RFC 2253 rendering of the certificate subject.
func (id *Identity) Subject() string {
	return cmsutil.SubjectString(id.Cert)
}

// HasKey reports whether the store holds private-key material for this
// certificate. Acquisition can still fail (e.g., wrong passphrase).
func (id *Identity) HasKey() bool {
	return id.key != nil
}

// Store is an open certificate store. It is created once per invocation and
// must stay open while any derived Identity or PrivateKey is in use.
type Store struct {
	name       string
	container  bool // PFX/JKS-derived: the container password already authenticated key access
	identities []*Identity
	db         *sqlx.DB // nil for container-derived stores
	closed     bool
}

// Name returns the logical store name ("my", a PFX path, ...).
func (s *Store) Name() string {
	return s.name
}

// FromContainer reports whether the store was derived from a PFX or JKS
// container. PIN injection is skipped for such stores: the container
// password authenticated key access when the store was opened.
func (s *Store) FromContainer() bool {
	return s.container
}

// Identities returns every certificate in the store, in enumeration order.
func (s *Store) Identities() []*Identity {
	return s.identities
}

// FindBySubject returns every identity whose subject DN contains query as a
// case-insensitive substring (see cmsutil.MatchesSubject), in store
// enumeration order. Zero matches is a valid empty result, not an error;
// the caller decides whether that is fatal.
func (s *Store) FindBySubject(query string) []*Identity {
	var matches []*Identity
	for _, id := range s.identities {
		if cmsutil.MatchesSubject(id.Cert, query) {
			matches = append(matches, id)
		}
	}
	return matches
}

// add appends an identity, preserving insertion order as enumeration order.
func (s *Store) add(cert *x509.Certificate, key *keyMaterial) *Identity {
	id := &Identity{Cert: cert, store: s, key: key}
	s.identities = append(s.identities, id)
	return id
}

// Close releases the store. The underlying database is closed exactly once;
// subsequent calls are no-ops. All identities and key handles derived from
// the store are invalid afterwards.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.identities = nil
	if s.db != nil {
		db := s.db
		s.db = nil
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing store database: %w", err)
		}
	}
	return nil
}
