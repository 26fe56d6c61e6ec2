package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "labelforge"

// ErrNoSecret is returned when access tokens are used without a configured
// signing secret.
var ErrNoSecret = errors.New("jwt secret is empty")

// Claims are the claims carried by an access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the user ID held in the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid subject claim")
	}
	return uint(id), nil
}

// IssueAccessToken signs an HS256 access token for the user.
func IssueAccessToken(
	secret string, userID uint, email string, ttl time.Duration, now time.Time,
) (token string, expiresAt time.Time, err error) {
	if secret == "" {
		return "", time.Time{}, ErrNoSecret
	}

	expiresAt = now.Add(ttl).UTC().Truncate(time.Second)
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return token, expiresAt, nil
}

// ParseAccessToken validates an access token and returns its claims.
func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}

	c, _ := tok.Claims.(*Claims)
	if c == nil {
		return nil, errors.New("invalid claims")
	}
	if _, err := c.UserID(); err != nil {
		return nil, err
	}
	return c, nil
}
