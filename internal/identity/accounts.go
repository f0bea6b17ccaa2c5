package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// Account is a stored credential. Anonymous accounts have no email or password.
type Account struct {
	UID          string
	Email        string
	PasswordHash string
	Anonymous    bool
	CreatedAt    time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	// Create stores a new account. Returns ErrEmailTaken if the email is registered.
	Create(ctx context.Context, a Account) error

	// ByEmail returns the account registered with email, or ErrAccountNotFound.
	ByEmail(ctx context.Context, email string) (*Account, error)

	// ByUID returns the account with uid, or ErrAccountNotFound.
	ByUID(ctx context.Context, uid string) (*Account, error)

	Close() error
}

// MemoryAccounts keeps accounts in a map. Used for tests and throwaway sessions.
type MemoryAccounts struct {
	mu      sync.Mutex
	byUID   map[string]Account
	byEmail map[string]string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byUID:   make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryAccounts) Create(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Email != "" {
		if _, ok := m.byEmail[a.Email]; ok {
			return ErrEmailTaken
		}
		m.byEmail[a.Email] = a.UID
	}
	m.byUID[a.UID] = a
	return nil
}

func (m *MemoryAccounts) ByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := m.byUID[uid]
	return &a, nil
}

func (m *MemoryAccounts) ByUID(_ context.Context, uid string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byUID[uid]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (m *MemoryAccounts) Close() error { return nil }

// SQLiteAccounts stores accounts in the accounts table of a migrated database.
type SQLiteAccounts struct {
	db *sql.DB
}

// NewSQLiteAccounts wraps db. The store owns db and closes it on Close.
func NewSQLiteAccounts(db *sql.DB) *SQLiteAccounts {
	return &SQLiteAccounts{db: db}
}

func (s *SQLiteAccounts) Create(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (uid, email, password_hash, anonymous, created_at) VALUES (?, ?, ?, ?, ?)",
		a.UID, nullString(a.Email), nullString(a.PasswordHash), a.Anonymous, a.CreatedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (s *SQLiteAccounts) ByEmail(ctx context.Context, email string) (*Account, error) {
	return s.queryOne(ctx, "WHERE email = ?", email)
}

func (s *SQLiteAccounts) ByUID(ctx context.Context, uid string) (*Account, error) {
	return s.queryOne(ctx, "WHERE uid = ?", uid)
}

func (s *SQLiteAccounts) Close() error {
	return s.db.Close()
}

func (s *SQLiteAccounts) queryOne(ctx context.Context, where string, arg any) (*Account, error) {
	var (
		a     Account
		email sql.NullString
		hash  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, email, password_hash, anonymous, created_at FROM accounts "+where, arg).
		Scan(&a.UID, &email, &hash, &a.Anonymous, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading account: %w", err)
	}
	a.Email = email.String
	a.PasswordHash = hash.String
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ AccountStore = (*MemoryAccounts)(nil)
	_ AccountStore = (*SQLiteAccounts)(nil)
)
