package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextClaims identify one browser context. The session slot of that
// context is only reachable with a token carrying its id.
type ContextClaims struct {
	ContextID string `json:"cid"`
	jwt.RegisteredClaims
}

func GenerateContextToken(secret string, contextID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ContextClaims{
		ContextID: contextID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   contextID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func ParseContextToken(tokenStr string, secret string) (*ContextClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ContextClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*ContextClaims); ok && token.Valid && claims.ContextID != "" {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
