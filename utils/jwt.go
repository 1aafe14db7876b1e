package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorAudience scopes operator tokens to link management.
const OperatorAudience = "docintake-operator"

// Claims defines the JWT claims carried by an operator token.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken issues an HS256 token for the named operator.
func GenerateOperatorToken(secret, operator string, duration time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("operator secret is empty")
	}
	now := time.Now()
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			Audience:  jwt.ClaimStrings{OperatorAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseOperatorToken validates a token and returns its claims.
func ParseOperatorToken(secret, tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithAudience(OperatorAudience))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
