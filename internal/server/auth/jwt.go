// Package auth mints and checks user tokens. Tokens are HS256 JWTs whose
// subject is the user identity; the server keeps only a keyed fingerprint
// of the current token, so rotating it revokes the previous one.
package auth

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Claims carries only registered claims: Subject is the user ID and ID is a
// random jti so two tokens minted in the same second still differ.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs a token for userID. Tokens do not expire by time;
// they are revoked by rotation.
func GenerateToken(userID string, secretKey []byte, issuedAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken verifies the signature and returns the subject.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrInvalidToken
		}
		return "", err
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}

// Fingerprint is the keyed BLAKE2b-256 digest of a token, hex encoded. It is
// what the users repository stores and indexes.
func Fingerprint(tokenString string, secretKey []byte) (string, error) {
	key := secretKey
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(tokenString))
	return hex.EncodeToString(h.Sum(nil)), nil
}
