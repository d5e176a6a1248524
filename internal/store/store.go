// Package store persists the trusted-hash ledger (spec §6.2
// trusted_hashes) in a single-file, cgo-free SQLite database. It
// generalizes the content-addressed cache pattern (SHA-256 key to cached
// artifact) from ephemeral per-build caching to a durable trust manifest:
// `arc trust` writes chunk/MAST hashes here, and TrustedOnly/Sandboxed VMs
// read the set back at construction.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS trusted_hashes (
	hash       TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS mast_blobs (
	hash       TEXT PRIMARY KEY,
	content    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`

// TrustStore is the on-disk trust ledger plus an optional MAST blob cache.
type TrustStore struct {
	db   *sql.DB
	path string
}

// Open creates or opens the store at path, applying the schema.
func Open(path string) (*TrustStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &TrustStore{db: db, path: path}, nil
}

func (s *TrustStore) Close() error { return s.db.Close() }

// Add records a trusted hash with an optional human label. Re-adding an
// existing hash updates the label.
func (s *TrustStore) Add(hash, label string) error {
	hash = normalize(hash)
	if err := validate(hash); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO trusted_hashes (hash, label, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET label = excluded.label`,
		hash, label, time.Now().Unix())
	return err
}

// Remove deletes a hash from the ledger.
func (s *TrustStore) Remove(hash string) error {
	_, err := s.db.Exec(`DELETE FROM trusted_hashes WHERE hash = ?`, normalize(hash))
	return err
}

// Has reports whether hash is trusted.
func (s *TrustStore) Has(hash string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM trusted_hashes WHERE hash = ?`, normalize(hash)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Entry is one trusted-hash row.
type Entry struct {
	Hash      string
	Label     string
	CreatedAt time.Time
}

// List returns every trusted hash, newest first.
func (s *TrustStore) List() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT hash, label, created_at FROM trusted_hashes ORDER BY created_at DESC, hash`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Hash, &e.Label, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// HashSet loads the full ledger as the map shape vm.Config consumes.
func (s *TrustStore) HashSet() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT hash FROM trusted_hashes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		set[h] = true
	}
	return set, rows.Err()
}

// PutMast caches a canonical MAST JSON document under its hash.
func (s *TrustStore) PutMast(hash string, content []byte) error {
	hash = normalize(hash)
	if err := validate(hash); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO mast_blobs (hash, content, created_at) VALUES (?, ?, ?)`,
		hash, content, time.Now().Unix())
	return err
}

// GetMast retrieves a cached MAST document; ok is false on a miss.
func (s *TrustStore) GetMast(hash string) (content []byte, ok bool, err error) {
	err = s.db.QueryRow(`SELECT content FROM mast_blobs WHERE hash = ?`, normalize(hash)).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// Stats summarizes the store for `arc store stat`.
type Stats struct {
	TrustedCount int
	MastCount    int
	FileBytes    int64
}

func (s *TrustStore) Stat() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM trusted_hashes`).Scan(&st.TrustedCount); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM mast_blobs`).Scan(&st.MastCount); err != nil {
		return st, err
	}
	if info, err := os.Stat(s.path); err == nil {
		st.FileBytes = info.Size()
	}
	return st, nil
}

func normalize(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

func validate(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("hash %q is not a hex SHA-256", hash)
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("hash %q is not a hex SHA-256", hash)
		}
	}
	return nil
}

// DefaultPath is the store location used when ARC_TRUST_STORE is unset.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "arc-trust.db"
	}
	return filepath.Join(home, ".arc", "trust.db")
}
