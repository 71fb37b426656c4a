package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tachyonlabs/modelgate/config"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("session token expired")

	// ErrNoCredential is returned by a TokenSource with no credential configured
	ErrNoCredential = errors.New("no credential configured")
)

// Claims represents the custom claims in a mobile session token
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id,omitempty"`
}

// Session represents a validated mobile session
type Session struct {
	UserID   string
	DeviceID string
	IssuedAt time.Time
	Expiry   time.Time
}

// Validator validates inbound session tokens
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*Session, error)
}

// TokenSource supplies a bearer credential for outbound provider calls.
// Refresh and expiry policy is owned by the implementation; callers treat
// it as "always eventually succeeds or returns an error".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Manager validates HMAC-signed session JWTs issued to the mobile client
type Manager struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

// NewManager creates a session manager from config
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		tokenTTL:   cfg.TokenTTL,
	}
}

// ValidateToken parses and validates a session JWT
func (m *Manager) ValidateToken(ctx context.Context, tokenString string) (*Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	session := &Session{
		UserID:   claims.Subject,
		DeviceID: claims.DeviceID,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.Expiry = claims.ExpiresAt.Time
	}

	return session, nil
}

// IssueToken mints a session JWT for a user. Used by the login flow owned
// by the surrounding application; exposed here so tests and tooling can
// produce valid tokens.
func (m *Manager) IssueToken(userID, deviceID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
		DeviceID: deviceID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// StaticTokenSource returns a fixed bearer credential, typically a
// provider API key loaded from config.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a TokenSource wrapping a fixed credential
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token implements TokenSource
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}
