package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/kvauth"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	display_name TEXT,
	email TEXT NOT NULL,
	avatar_url TEXT,
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deleted', 'blocked')),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS users_username_unq_idx ON users (username);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_unq_idx ON users (email);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	provider TEXT NOT NULL,
	provider_account_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (provider, provider_account_id)
);
CREATE INDEX IF NOT EXISTS accounts_user_id_idx ON accounts (user_id);
`

const userColumns = `id, username, COALESCE(display_name, ''), email, COALESCE(avatar_url, ''), status, created_at`

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Store is a kvauth.UserDirectory backed by one SQLite database.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

var _ kvauth.UserDirectory = (*Store)(nil)

// Open opens the database at path and creates the schema. Use ":memory:"
// for a throwaway database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now, newID: uuid.NewString}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*kvauth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*kvauth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*kvauth.User, error) {
	var (
		u       kvauth.User
		status  string
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.AvatarURL, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Status = kvauth.UserStatus(status)
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n); err != nil {
		return false, fmt.Errorf("count usernames: %w", err)
	}
	return n > 0, nil
}

// CreateUser inserts the user and its first account in one transaction.
func (s *Store) CreateUser(ctx context.Context, nu kvauth.NewUser) (string, error) {
	id := nu.ID
	if id == "" {
		id = s.newID()
	}
	now := toMillis(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, avatar_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
		id, nu.Username, nullable(nu.DisplayName), strings.ToLower(nu.Email), nullable(nu.AvatarURL), now, now,
	); err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	if err := insertAccount(ctx, tx, s.newID(), id, nu.Provider, nu.ProviderAccountID, now); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID, displayName, avatarURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		nullable(displayName), nullable(avatarURL), toMillis(s.now()), userID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *Store) HasProvider(ctx context.Context, userID, provider string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = ? AND provider = ?`, userID, provider,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	return n > 0, nil
}

func (s *Store) LinkProvider(ctx context.Context, userID, provider, providerAccountID string) error {
	return insertAccount(ctx, s.db, s.newID(), userID, provider, providerAccountID, toMillis(s.now()))
}

// DeleteUser removes the user and, through the foreign key, its accounts.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// SetStatus changes a user's lifecycle state, for instance to block them.
func (s *Store) SetStatus(ctx context.Context, userID string, status kvauth.UserStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`, string(status), toMillis(s.now()), userID,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// Providers lists the providers linked to userID in link order.
func (s *Store) Providers(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider FROM accounts WHERE user_id = ? ORDER BY created_at, rowid`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAccount(ctx context.Context, db execContexter, id, userID, provider, providerAccountID string, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, provider, provider_account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, provider, providerAccountID, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
