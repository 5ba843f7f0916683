package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

// UserStore implements storage.UserStore using SQLite.
type UserStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewUserStore creates a new SQLite-backed UserStore.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{wrapper: db, db: db.DB()}
}

var _ storage.UserStore = (*UserStore)(nil)

// userColumns is the SELECT column list shared by the lookup queries.
const userColumns = `id, email, display_name, password_hash, created_at, last_active, active`

// Create persists a new user record. The email is canonicalized to lowercase
// before storage so lookups are case-insensitive.
func (s *UserStore) Create(ctx context.Context, user *storage.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("password hash cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, created_at, last_active, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		strings.ToLower(user.Email),
		user.DisplayName,
		user.PasswordHash,
		formatTime(user.CreatedAt),
		formatTime(user.LastActive),
		boolToInt(user.Active),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID returns the user with the given id.
func (s *UserStore) GetByID(ctx context.Context, id string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, matched case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

// TouchLastActive updates the user's last_active timestamp to now.
func (s *UserStore) TouchLastActive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_active = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("updating last_active: %w", err)
	}
	return checkAffected(res)
}

// SetActive flips the soft-deactivation flag.
func (s *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating active flag: %w", err)
	}
	return checkAffected(res)
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

func scanUser(sc scanner) (*storage.User, error) {
	var (
		user                     storage.User
		createdAtStr, lastActStr string
		active                   int
	)
	err := sc.Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash,
		&createdAtStr, &lastActStr, &active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	if user.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if user.LastActive, err = parseTime(lastActStr); err != nil {
		return nil, fmt.Errorf("parsing last_active: %w", err)
	}
	user.Active = active != 0

	return &user, nil
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
