package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/aigov-engine/internal/domain"
)

// TokenIssuer — выпускает консоль; валидатор требует совпадения,
// чтобы токены сторонних сервисов с тем же ключом не проходили.
const TokenIssuer = "aigov-console"

// BaseValidator проверяет RS256-токены консоли.
type BaseValidator struct {
	parser    *jwt.Parser
	publicKey *rsa.PublicKey
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{
		// Алгоритм зафиксирован жестко: подмена на HS256 с публичным
		// ключом в роли секрета — классическая атака на JWT
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(TokenIssuer),
			jwt.WithExpirationRequired(),
		),
		publicKey: pubKey,
	}
}

// VerifyToken реализует интерфейс auth.TokenValidator.
func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	token, err := v.parser.ParseWithClaims(tokenStr, &domain.CustomClaims{},
		func(*jwt.Token) (interface{}, error) { return v.publicKey, nil })
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*domain.CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token without user id")
	}
	return claims, nil
}

// ParseRSAPublicKey — PEM -> ключ проверки подписи.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// ParseRSAPrivateKey — PEM -> ключ подписи (нужен только процессу,
// выпускающему токены).
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("private key data is empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
