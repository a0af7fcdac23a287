package store

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sensiblebit/cmsutil"
)

// certRow maps a row in the certificates table.
type certRow struct {
	SerialNumber         string    `db:"serial_number"`
	Subject              string    `db:"subject"`
	SubjectKeyIdentifier string    `db:"subject_key_identifier"`
	NotBefore            time.Time `db:"not_before"`
	NotAfter             time.Time `db:"not_after"`
	PEM                  []byte    `db:"pem"`
}

// keyRow maps a row in the keys table. Protected keys hold their PEM
// material still encrypted; unlocking happens at acquisition time.
type keyRow struct {
	SubjectKeyIdentifier string `db:"subject_key_identifier"`
	KeyType              string `db:"key_type"`
	PEM                  []byte `db:"pem"`
	Protected            bool   `db:"protected"`
}

// openDB opens the SQLite database for a named store.
func openDB(path string) (*sqlx.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// initSchema creates the certificates and keys tables.
func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS certificates (
			serial_number           text NOT NULL,
			subject                 text NOT NULL,
			subject_key_identifier  text NOT NULL,
			not_before              timestamp NOT NULL,
			not_after               timestamp NOT NULL,
			pem                     blob NOT NULL,
			PRIMARY KEY(serial_number, subject_key_identifier)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating certificates table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS keys (
			subject_key_identifier  text PRIMARY KEY,
			key_type                text NOT NULL,
			pem                     blob NOT NULL,
			protected               integer NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("creating keys table: %w", err)
	}
	return nil
}

// Create initializes a new named store for a kind, creating the root
// directory if needed. Fails if the store already exists.
func Create(kind Kind, name string, cfg *Config) (*Store, error) {
	path, err := cfg.StorePath(kind, name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("certificate store %q (%s) already exists at %s", name, kind, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{name: name, db: db}, nil
}

// Open opens an existing named store for a kind and loads its identities.
// The store must have been created with Create (or populated by import);
// a missing database is a store-open error, not an empty store.
func Open(kind Kind, name string, cfg *Config) (*Store, error) {
	path, err := cfg.StorePath(kind, name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %q (%s): %w", name, kind, ErrStoreNotFound)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{name: name, db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading store %q: %w", name, err)
	}
	return s, nil
}

// load reads all rows and builds the identity list. Certificates enumerate
// in insertion (rowid) order; keys pair to certificates by SKI. A key that
// fails to parse is logged and treated as absent rather than failing the
// whole store.
func (s *Store) load() error {
	var keyRows []keyRow
	if err := s.db.Select(&keyRows, `SELECT subject_key_identifier, key_type, pem, protected FROM keys`); err != nil {
		return fmt.Errorf("querying keys: %w", err)
	}

	keysBySKI := make(map[string]*keyMaterial, len(keyRows))
	for _, kr := range keyRows {
		km := &keyMaterial{provider: "software", name: kr.SubjectKeyIdentifier}
		if kr.Protected {
			km.encPEM = kr.PEM
		} else {
			key, err := cmsutil.ParsePEMPrivateKey(kr.PEM)
			if err != nil {
				slog.Warn("skipping unparseable stored key", "ski", kr.SubjectKeyIdentifier, "error", err)
				continue
			}
			km.plain = key
		}
		keysBySKI[kr.SubjectKeyIdentifier] = km
	}

	var certRows []certRow
	err := s.db.Select(&certRows, `
		SELECT serial_number, subject, subject_key_identifier, not_before, not_after, pem
		FROM certificates ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying certificates: %w", err)
	}

	for _, cr := range certRows {
		certs, err := cmsutil.ParsePEMCertificates(cr.PEM)
		if err != nil {
			slog.Warn("skipping unparseable stored certificate", "subject", cr.Subject, "error", err)
			continue
		}
		s.add(certs[0], keysBySKI[cr.SubjectKeyIdentifier])
	}
	return nil
}

// insertCertificate writes one certificate row. Duplicate (serial, SKI)
// pairs are ignored, matching INSERT OR IGNORE semantics.
func (s *Store) insertCertificate(cert certRow) error {
	_, err := s.db.NamedExec(`
		INSERT OR IGNORE INTO certificates
			(serial_number, subject, subject_key_identifier, not_before, not_after, pem)
		VALUES
			(:serial_number, :subject, :subject_key_identifier, :not_before, :not_after, :pem)`,
		cert)
	if err != nil {
		return fmt.Errorf("inserting certificate: %w", err)
	}
	return nil
}

// insertKey writes one key row, replacing any previous key with the same SKI.
func (s *Store) insertKey(key keyRow) error {
	_, err := s.db.NamedExec(`
		INSERT OR REPLACE INTO keys (subject_key_identifier, key_type, pem, protected)
		VALUES (:subject_key_identifier, :key_type, :pem, :protected)`,
		key)
	if err != nil {
		return fmt.Errorf("inserting key: %w", err)
	}
	return nil
}

// skiHex computes the hex RFC 7093 SKI for a public key.
func skiHex(pub any) (string, error) {
	raw, err := cmsutil.ComputeSKI(pub)
	if err != nil {
		return "", fmt.Errorf("computing SKI: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
