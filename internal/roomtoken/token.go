// Package roomtoken mints and reads the bearer credentials used to join a
// room.
package roomtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "aegis-relay"

var (
	ErrInvalidToken = errors.New("invalid room token")
	ErrMissingRoom  = errors.New("room token has no room")
)

// Claims identify one participant in one room.
type Claims struct {
	jwt.RegisteredClaims

	Room string `json:"room"`
}

// Identity is the participant the credential was issued to.
func (c Claims) Identity() string {
	return c.Subject
}

// Expiry returns the zero time when the credential does not expire.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Mint signs an HS256 credential for identity in room.
func Mint(secret []byte, room, identity string, ttl time.Duration, now time.Time) (string, error) {
	room = strings.TrimSpace(room)
	identity = strings.TrimSpace(identity)
	if room == "" {
		return "", ErrMissingRoom
	}
	if identity == "" {
		return "", errors.New("room token needs an identity")
	}
	if len(secret) == 0 {
		return "", errors.New("room token secret is empty")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  identity,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Room: room,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature, issuer and expiry.
func Verify(secret []byte, token string, now time.Time) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if claims.Room == "" {
		return Claims{}, ErrMissingRoom
	}
	return *claims, nil
}

// Inspect reads claims without checking the signature. Clients use it only to
// label a credential they were handed; the room authority still verifies it.
func Inspect(token string) (Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
