package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTTL    = 24 * time.Hour
	sessionIssuer = "petty-cash"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken is returned for a missing, expired or forged session token
	ErrInvalidToken = errors.New("invalid session token")
)

// Authenticator checks admin passwords and issues signed session tokens
type Authenticator struct {
	db         DB
	secret     []byte
	timeSource TimeSource
	cost       int
}

// NewAuthenticator creates an Authenticator signing tokens with secret
func NewAuthenticator(db DB, secret []byte) (*Authenticator, error) {
	return NewAuthenticatorWithDeps(db, secret, &defaultTimeSource{}, bcrypt.DefaultCost)
}

// NewAuthenticatorWithDeps creates an Authenticator with a custom clock and bcrypt cost for testing
func NewAuthenticatorWithDeps(db DB, secret []byte, timeSrc TimeSource, cost int) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	return &Authenticator{
		db:         db,
		secret:     secret,
		timeSource: timeSrc,
		cost:       cost,
	}, nil
}

// EnsureAdmin creates the admin or replaces its password
func (a *Authenticator) EnsureAdmin(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("admin username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := a.timeSource.Now()
	admin := &Admin{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, err := a.db.GetAdmin(username); err == nil {
		admin.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("getting admin: %w", err)
	}

	if err := a.db.SaveAdmin(admin); err != nil {
		return fmt.Errorf("saving admin: %w", err)
	}
	return nil
}

// Login checks the password and returns a signed token and its expiry
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	admin, err := a.db.GetAdmin(strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.timeSource.Now()
	expires := now.Add(sessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strings.ToLower(admin.Username),
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks a session token and returns the admin it was issued to.
// The admin must still exist.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.timeSource.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// A removed admin loses access immediately, not when the token expires
	admin, err := a.db.GetAdmin(claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: unknown admin %q", ErrInvalidToken, claims.Subject)
	}
	if err != nil {
		return "", fmt.Errorf("getting admin: %w", err)
	}
	return strings.ToLower(admin.Username), nil
}
