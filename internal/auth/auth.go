package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/accountax/marketd/cmd/config"
	"github.com/accountax/marketd/internal/models"
)

const TokenExp = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID   `json:"userID"`
	Role   models.Role `json:"role"`
}

func GenerateToken(userID uuid.UUID, role models.Role) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExp)),
		},
		UserID: userID,
		Role:   role,
	})
	return token.SignedString([]byte(config.JWTSecret))
}

func ParseToken(tokenString string) (uuid.UUID, models.Role, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}
	if !models.ValidRole(claims.Role) {
		return uuid.Nil, "", ErrInvalidToken
	}
	return claims.UserID, claims.Role, nil
}
