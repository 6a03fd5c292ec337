package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates access from refresh tokens in the signed payload.
type TokenType string

const (
	// TypeAccess is an exported constant or variable used by the authentication engine.
	TypeAccess TokenType = "access"
	// TypeRefresh is an exported constant or variable used by the authentication engine.
	TypeRefresh TokenType = "refresh"
)

// ErrTokenExpired is surfaced when the exp claim has lapsed. All other parse
// failures are reported as ErrTokenInvalid so callers cannot distinguish
// tampering from malformed input.
var (
	ErrTokenExpired = errors.New("jwt: token expired")
	ErrTokenInvalid = errors.New("jwt: token invalid")
	ErrTokenType    = errors.New("jwt: unexpected token type")
)

// Config defines a public type used by otpAuth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret []byte // HS256 signing key, process-wide
	Issuer string
	Leeway time.Duration
}

// Claims is the signed payload shared by access and refresh tokens:
// the backing record id, the owning user, the client device, expiry, and
// the type discriminator. The record, not the signature, is the source of
// truth for revocation.
type Claims struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	DeviceID string    `json:"device_id,omitempty"`
	Type     TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Manager signs and verifies token strings with a symmetric HS256 key.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 requires a secret of at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// Sign produces the signed token string for one token record.
//
// Sign may return an error when input validation, dependency calls, or security checks fail.
// Sign does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) Sign(id, userID int64, deviceID string, typ TokenType, expiresAt time.Time) (string, error) {
	if typ != TypeAccess && typ != TypeRefresh {
		return "", ErrTokenType
	}

	claims := Claims{
		ID:       id,
		UserID:   userID,
		DeviceID: deviceID,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.Secret)
}

// Parse verifies the signature and registered claims of tokenStr and requires
// the embedded type to match typ.
//
// Parse may return an error when input validation, dependency calls, or security checks fail.
// Parse does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) Parse(tokenStr string, typ TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != typ {
		return nil, ErrTokenType
	}
	if claims.ID <= 0 || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
