// Package auth turns bearer tokens into caller contexts.
// Tokens are stateless HS256 JWTs, so any instance holding the secret can
// verify them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dapp-works/urpc/core/schema"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("no bearer token")

// Identity is who a token is issued to.
type Identity struct {
	UserID     string
	Email      string
	Role       string // "admin" or "user"
	Teams      []string
	SuperAdmin bool
}

// Claims represents the JWT claims of a caller token.
type Claims struct {
	UserID     string   `json:"uid"`
	Email      string   `json:"email,omitempty"`
	Role       string   `json:"role,omitempty"`
	Teams      []string `json:"teams,omitempty"`
	SuperAdmin bool     `json:"superAdmin,omitempty"`
	jwt.RegisteredClaims
}

// Caller converts claims into the caller context predicates evaluate:
//
//	{"isAdmin": bool, "user": {"id", "email", "role", "teams", "isSuperAdmin"}}
func (c *Claims) Caller() schema.Caller {
	teams := make([]any, len(c.Teams))
	for i, t := range c.Teams {
		teams[i] = t
	}
	return schema.Caller{
		"isAdmin": c.Role == "admin" || c.SuperAdmin,
		"user": map[string]any{
			"id":           c.UserID,
			"email":        c.Email,
			"role":         c.Role,
			"teams":        teams,
			"isSuperAdmin": c.SuperAdmin,
		},
	}
}

// TokenService provides stateless JWT token operations.
// Thread-safe and suitable for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewTokenService creates a new JWT token service.
// If secret is empty, a random 32-byte secret is generated.
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}

	if expiration == 0 {
		expiration = 24 * time.Hour
	}

	return &TokenService{
		secret:     secretBytes,
		issuer:     "urpc",
		expiration: expiration,
	}
}

// GenerateToken creates a new JWT token for id.
func (s *TokenService) GenerateToken(id Identity) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		UserID:     id.UserID,
		Email:      id.Email,
		Role:       id.Role,
		Teams:      id.Teams,
		SuperAdmin: id.SuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// RefreshToken creates a new token with extended expiration.
func (s *TokenService) RefreshToken(tokenString string) (string, time.Time, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}

	return s.GenerateToken(Identity{
		UserID:     claims.UserID,
		Email:      claims.Email,
		Role:       claims.Role,
		Teams:      claims.Teams,
		SuperAdmin: claims.SuperAdmin,
	})
}

// CallerFunc returns a request extractor for the transports. The token is
// read from header (with an optional "Bearer " prefix) or, for WebSocket
// upgrades that cannot set headers, from the "token" query parameter.
// Requests without a token are anonymous; invalid tokens are errors.
func (s *TokenService) CallerFunc(header string) func(*http.Request) (schema.Caller, error) {
	if header == "" {
		header = "Authorization"
	}
	return func(r *http.Request) (schema.Caller, error) {
		raw, err := bearer(r, header)
		if errors.Is(err, ErrNoToken) {
			return schema.Caller{}, nil
		}
		claims, err := s.ValidateToken(raw)
		if err != nil {
			return nil, err
		}
		return claims.Caller(), nil
	}
}

func bearer(r *http.Request, header string) (string, error) {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:]), nil
		}
		return v, nil
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v, nil
	}
	return "", ErrNoToken
}

// GenerateSecret generates a random secret suitable for JWT signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
