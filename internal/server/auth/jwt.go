// Package auth mints and parses the opaque session tokens handed out by
// the account token ledger. Tokens are HS256 JWTs carrying the account id;
// validity is still decided by ledger membership, parsing only lets the
// HTTP layer reject id/token pairs that belong to different accounts.
package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/subit-dev/posterd/internal/common"
)

type Claims struct {
	jwt.RegisteredClaims
	AccountID string
}

// GenerateToken signs a token for the given account. A nil expiry
// produces a token with no expiration claim.
func GenerateToken(accountID uint64, secretKey []byte, expiresAt *time.Time) (string, error) {
	claims := Claims{
		AccountID: strconv.FormatUint(accountID, 10),
	}
	if expiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetAccountIDFromToken extracts the account id from a signed token.
func GetAccountIDFromToken(tokenString string, secretKey []byte) (uint64, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return 0, err
	}

	if !token.Valid {
		return 0, common.ErrTokenIncorrect
	}

	id, err := strconv.ParseUint(claims.AccountID, 10, 64)
	if err != nil {
		return 0, common.ErrTokenIncorrect
	}

	return id, nil
}
