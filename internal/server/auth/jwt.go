// Package auth issues and verifies the HS256 bearer tokens that carry a
// user's identity and role between requests.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard registered claims plus the caller identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64       `json:"uid"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// Identity is the authenticated caller extracted from a valid token.
type Identity struct {
	UserID   int64
	Username string
	Role     models.Role
}

// GenerateToken signs a token for u that expires validity after now.
func GenerateToken(u *models.User, secretKey []byte, validity time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		UserID:   u.ID,
		Username: u.UserName,
		Role:     u.Role,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies signature and expiry against now. Expired tokens
// yield common.ErrTokenExpired, anything else common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte, now time.Time) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == 0 {
		return nil, common.ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}
