package store

import (
	"database/sql"
	"fmt"
	"sync"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"nickandperla.net/scrap/internal/errwrap"
	"nickandperla.net/scrap/internal/hash"
)

// SchemaVersion is recorded in the database's user_version pragma.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS scraps (
	hash BLOB PRIMARY KEY,
	flat BLOB NOT NULL
) WITHOUT ROWID;
`

// SQLite is a SQLite-backed append-only backend.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens or creates the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "open %s", path)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, errwrap.Append(errwrap.Wrapf(err, "open %s", path), db.Close())
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	version, err := s.Version()
	if err != nil {
		return err
	}
	switch version {
	case 0:
		if _, err := s.db.Exec(schema); err != nil {
			return errwrap.Wrapf(err, "create schema")
		}
		return s.setVersion(SchemaVersion)
	case SchemaVersion:
		return nil
	}
	return fmt.Errorf("unsupported schema version %d, want %d", version, SchemaVersion)
}

// Version reports the schema version stored in the database.
func (s *SQLite) Version() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, errwrap.Wrapf(err, "read schema version")
	}
	return v, nil
}

func (s *SQLite) setVersion(v int) error {
	// PRAGMA does not accept bound parameters.
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return errwrap.Wrapf(err, "write schema version")
	}
	return nil
}

// Get retrieves the entry for h.
func (s *SQLite) Get(h hash.Hash) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	switch err := s.db.QueryRow("SELECT flat FROM scraps WHERE hash = ?", h[:]).Scan(&data); err {
	case nil:
		return data, true, nil
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, errwrap.Wrapf(err, "get %s", h)
	}
}

// Put stores data under h. Existing entries are never replaced.
func (s *SQLite) Put(h hash.Hash, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("INSERT OR IGNORE INTO scraps (hash, flat) VALUES (?, ?)", h[:], data)
	if err != nil {
		return false, errwrap.Wrapf(err, "put %s", h)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errwrap.Wrapf(err, "put %s", h)
	}
	return n > 0, nil
}

// Len returns the number of stored scraps.
func (s *SQLite) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM scraps").Scan(&n); err != nil {
		return 0, errwrap.Wrapf(err, "count scraps")
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
