package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
)

const tokenIssuer = "bornify"

// Claims is the payload of a session token.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer. A non-positive ttl falls back to 7 days.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the given account.
func (t *TokenIssuer) Issue(userID uuid.UUID, email, name string) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrTokenInvalid
	}
	now := t.now().UTC()
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates a token and returns the account ID it was issued for.
func (t *TokenIssuer) Parse(token string) (uuid.UUID, Claims, error) {
	if len(t.secret) == 0 || strings.TrimSpace(token) == "" {
		return uuid.Nil, Claims{}, ErrTokenInvalid
	}

	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, Claims{}, ErrTokenExpired
		}
		return uuid.Nil, Claims{}, ErrTokenInvalid
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil || claims.Subject != claims.UserID {
		return uuid.Nil, Claims{}, ErrTokenInvalid
	}
	return id, claims, nil
}
