package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JWTClaims struct {
	UserID      primitive.ObjectID `json:"user_id"`
	Username    string             `json:"username"`
	UserType    string             `json:"user_type"`
	Permissions []string           `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an HS256 access token. Account management lives
// outside this service; the function exists for trusted issuers and tests.
func GenerateAccessToken(userID primitive.ObjectID, username, userType string, permissions []string, secretKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = JWTAccessTokenTTL
	}

	claims := &JWTClaims{
		UserID:      userID,
		Username:    username,
		UserType:    userType,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    AppName,
			Subject:   userID.Hex(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

func ValidateToken(tokenString, secretKey string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.UserID.IsZero() {
			return nil, errors.New("token has no subject")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
