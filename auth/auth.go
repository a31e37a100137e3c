/*
auth.go - User accounts and token-based authentication

PURPOSE:
  Registration, login and token verification for the ledger API. Users
  are global; what they can see is decided per workspace by membership,
  not here.

TOKENS:
  Stateless HS256 JWTs carrying the user id as subject and the username
  as a private claim. Verification is purely cryptographic; there is no
  server-side session to revoke, tokens simply expire.

SEE ALSO:
  - middleware.go: request authentication and actor extraction
*/
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/agristock/ledger-engine/ledger"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong
	// passwords, deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken means the bearer token failed verification.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUsernameTaken means registration hit an existing username.
	ErrUsernameTaken = errors.New("username already taken")
)

// User is a registered account.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	CreatedAt   string `json:"createdAt"`
	LastLoginAt string `json:"lastLoginAt,omitempty"`
}

// Service handles accounts and tokens.
type Service struct {
	db     ledger.Runner
	log    *zap.Logger
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service signing tokens with secret, valid
// for ttl. A nil logger is replaced with a no-op one.
func NewService(db ledger.Runner, secret string, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log, secret: []byte(secret), ttl: ttl}
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Register creates an account. Password strength is the caller's
// problem beyond a bare minimum length.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var u User
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, password_hash) VALUES (?, ?)",
			username, string(hash),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			"SELECT id, username, created_at FROM users WHERE id = ?", id,
		).Scan(&u.ID, &u.Username, &u.CreatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrUsernameTaken, username)
		}
		return nil, err
	}

	s.log.Info("user registered", zap.String("username", username), zap.Int64("userId", u.ID))
	return &u, nil
}

// Login verifies credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	var u User
	var hash string
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
			username,
		).Scan(&u.ID, &u.Username, &hash, &u.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return err
	})
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE users SET last_login_at = datetime('now') WHERE id = ?", u.ID)
		return err
	})
	if err != nil {
		s.log.Warn("failed to record login time", zap.Int64("userId", u.ID), zap.Error(err))
	}

	return signed, &u, nil
}

// Verify checks a token and returns the actor it identifies.
func (s *Service) Verify(tokenString string) (*ledger.Actor, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &ledger.Actor{UserID: userID, Username: c.Username}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
