// Package session issues and validates admin sessions and carries the
// per-request authorization context into the services.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

// MaxAge is how long an admin session stays valid after it was issued.
const MaxAge = 24 * time.Hour

var (
	ErrInvalidSession = errors.New("invalid or expired session")
	ErrForbidden      = errors.New("admin access required")
)

// Session is the decoded admin session: an admin flag and the time it was issued.
type Session struct {
	SubjectID uuid.UUID
	IsAdmin   bool
	IssuedAt  time.Time
}

// Valid reports whether the session grants admin access at now.
func (s Session) Valid(now time.Time, maxAge time.Duration) bool {
	if !s.IsAdmin || s.IssuedAt.IsZero() {
		return false
	}
	age := now.Sub(s.IssuedAt)
	return age >= 0 && age < maxAge
}

type claims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

// Manager signs sessions as HS256 tokens.
type Manager struct {
	secret []byte
	maxAge time.Duration
}

func NewManager(secret string, maxAge time.Duration) *Manager {
	if maxAge <= 0 {
		maxAge = MaxAge
	}
	return &Manager{secret: []byte(secret), maxAge: maxAge}
}

func (m *Manager) Issue(adminID uuid.UUID, now time.Time) (string, error) {
	c := claims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  adminID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// Parse decodes raw and checks it at now. Every failure, including a
// malformed token, returns ErrInvalidSession.
func (m *Manager) Parse(raw string, now time.Time) (Session, error) {
	if raw == "" {
		return Session{}, ErrInvalidSession
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return Session{}, ErrInvalidSession
	}

	if c.IssuedAt == nil {
		return Session{}, ErrInvalidSession
	}

	subject, err := uuid.FromString(c.Subject)
	if err != nil {
		return Session{}, ErrInvalidSession
	}

	s := Session{SubjectID: subject, IsAdmin: c.Admin, IssuedAt: c.IssuedAt.Time}
	if !s.Valid(now, m.maxAge) {
		return Session{}, ErrInvalidSession
	}

	return s, nil
}

// AuthContext is the authorization decision made once at the request boundary.
// The zero value is an anonymous caller.
type AuthContext struct {
	SubjectID uuid.UUID
	IsAdmin   bool
}

func Anonymous() AuthContext {
	return AuthContext{}
}

func Admin(id uuid.UUID) AuthContext {
	return AuthContext{SubjectID: id, IsAdmin: true}
}

func (a AuthContext) RequireAdmin() error {
	if !a.IsAdmin {
		return ErrForbidden
	}
	return nil
}

type ctxKey struct{}

func WithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, auth)
}

// FromContext returns the AuthContext stored by the middleware, or Anonymous.
func FromContext(ctx context.Context) AuthContext {
	auth, ok := ctx.Value(ctxKey{}).(AuthContext)
	if !ok {
		return Anonymous()
	}
	return auth
}
