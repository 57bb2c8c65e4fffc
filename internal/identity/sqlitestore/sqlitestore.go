// Package sqlitestore is the durable identity.Store adapter backed by a
// single SQLite file. Suited to single-node deployments; multi-node setups
// need a linearizable external store instead.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lp24213/agroisync-sub001/internal/identity"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,          -- normalized to lower case
    wallet_address TEXT,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    permissions TEXT NOT NULL,           -- JSON array
    failed_attempts INTEGER NOT NULL DEFAULT 0,
    locked_until DATETIME,
    two_factor_enabled INTEGER NOT NULL DEFAULT 0,
    two_factor_secret TEXT,              -- crypto storage envelope
    created_at DATETIME NOT NULL,
    last_login DATETIME
);

CREATE INDEX IF NOT EXISTS idx_identities_email ON identities(email);
`

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open connects to the database file, verifies the connection and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `id, email, wallet_address, password_hash, role, active,
permissions, failed_attempts, locked_until, two_factor_enabled,
two_factor_secret, created_at, last_login`

func (s *Store) Get(ctx context.Context, id string) (*identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM identities WHERE id = ?`, id)
	return scanIdentity(row)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM identities WHERE email = ?`, strings.ToLower(email))
	return scanIdentity(row)
}

func (s *Store) Put(ctx context.Context, rec *identity.Identity) error {
	perms, err := json.Marshal(rec.Permissions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO identities (
            id, email, wallet_address, password_hash, role, active,
            permissions, failed_attempts, locked_until, two_factor_enabled,
            two_factor_secret, created_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            email = excluded.email,
            wallet_address = excluded.wallet_address,
            password_hash = excluded.password_hash,
            role = excluded.role,
            active = excluded.active,
            permissions = excluded.permissions,
            failed_attempts = excluded.failed_attempts,
            locked_until = excluded.locked_until,
            two_factor_enabled = excluded.two_factor_enabled,
            two_factor_secret = excluded.two_factor_secret,
            last_login = excluded.last_login
    `, rec.ID, strings.ToLower(rec.Email), rec.WalletAddress, rec.PasswordHash,
		string(rec.Role), rec.Active, string(perms), rec.FailedAttempts,
		rec.LockedUntil, rec.TwoFactorEnabled, rec.TwoFactorSecret,
		rec.CreatedAt, rec.LastLogin)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	return err
}

func (s *Store) Scan(ctx context.Context, fn func(*identity.Identity) bool) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM identities`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanIdentity(rows)
		if err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*identity.Identity, error) {
	var (
		rec         identity.Identity
		role        string
		perms       string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
		wallet      sql.NullString
		secret      sql.NullString
	)

	err := row.Scan(&rec.ID, &rec.Email, &wallet, &rec.PasswordHash, &role,
		&rec.Active, &perms, &rec.FailedAttempts, &lockedUntil,
		&rec.TwoFactorEnabled, &secret, &rec.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Role = identity.Role(role)
	rec.WalletAddress = wallet.String
	rec.TwoFactorSecret = secret.String
	if err := json.Unmarshal([]byte(perms), &rec.Permissions); err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		rec.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		rec.LastLogin = &t
	}
	return &rec, nil
}
