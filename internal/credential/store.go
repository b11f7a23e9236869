// Package credential stores chat accounts in sqlite with bcrypt-hashed
// passwords.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUsernameExists is returned by Register when the name is taken.
	ErrUsernameExists = errors.New("username already exists")
	// ErrInvalidCredentials is returned by Authenticate for an unknown user
	// or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
)`

// Config configures Open.
type Config struct {
	// Path is the sqlite database file. Required.
	Path string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Store struct {
	db     *sql.DB
	cost   int
	logger *slog.Logger
}

// Open opens (creating if needed) the account database at cfg.Path.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("credential: Path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d out of range %d-%d", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("credential: opening %s: %w", cfg.Path, err)
	}
	// sqlite allows one writer; serialize instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("credential: creating schema: %w", err)
	}

	logger.Info("credential store opened", "path", cfg.Path)
	return &Store{db: db, cost: cost, logger: logger}, nil
}

// Register creates an account. Format validation is the caller's job.
func (s *Store) Register(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	query := "INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, username, string(hash), time.Now()); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			s.logger.Warn("registration rejected, username taken", "username", username)
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to insert user '%s': %w", username, err)
	}

	s.logger.Info("user registered", "username", username)
	return nil
}

// Authenticate checks username/password against the stored hash.
func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	var hash string
	query := "SELECT password_hash FROM users WHERE username = ?"
	if err := s.db.QueryRowContext(ctx, query, username).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("login for unknown user", "username", username)
			return ErrInvalidCredentials
		}
		return fmt.Errorf("error querying user '%s': %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		s.logger.Warn("login with wrong password", "username", username)
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
