// Package auth mints and verifies the opaque bearer tokens binding a
// session id and a creator/viewer role.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/deathboy20/stream-server/internal/core"
)

const tokenTTL = 24 * time.Hour

type Claims struct {
	SessionID string `json:"sessionId"`
	IsCreator bool   `json:"isCreator"`
	jwt.RegisteredClaims
}

type Minter struct {
	secret []byte
}

func NewMinter(secret string) *Minter {
	return &Minter{secret: []byte(secret)}
}

func (m *Minter) Mint(sessionID string, isCreator bool) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		IsCreator: isCreator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the bound claims or core.ErrInvalidToken; callers never
// see parser internals.
func (m *Minter) Verify(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, core.ErrInvalidToken
	}
	return claims, nil
}
