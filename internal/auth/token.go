package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL はAPIトークンの有効期間。
const tokenTTL = 7 * 24 * time.Hour

// JWTIssuer はHMAC署名のJWTを発行する。
type JWTIssuer struct {
	secret []byte

	now func() time.Time
}

// NewJWTIssuer はJWTIssuerを生成する。
func NewJWTIssuer(secret string) *JWTIssuer {
	return &JWTIssuer{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue はユーザーIDとemailを含むトークンを発行する。
func (i *JWTIssuer) Issue(userID, email string) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"iat":     now.Unix(),
		"exp":     now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証し、ユーザーIDとemailを取り出す。
func (i *JWTIssuer) Parse(tokenString string) (userID, email string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	userID, _ = claims["user_id"].(string)
	email, _ = claims["email"].(string)
	return userID, email, nil
}
