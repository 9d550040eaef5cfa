package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/monocle-dev/oncall/internal/types"
)

// SessionTTL is how long issued session tokens stay valid.
const SessionTTL = 168 * time.Hour

// Claims identifies the member behind a session token.
type Claims struct {
	UserID uint
	Email  string
}

// JWT signs and verifies HS256 session tokens.
type JWT struct {
	secret []byte
	now    func() time.Time
}

func NewJWT(secret string) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is not set")
	}
	return &JWT{secret: []byte(secret), now: time.Now}, nil
}

func (j *JWT) Generate(userID uint, email string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     j.now().Add(SessionTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// Verify parses the token and returns its claims. Any failure is reported as
// types.ErrUnauthorized.
func (j *JWT) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))

	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: invalid or expired token", types.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: invalid token claims", types.ErrUnauthorized)
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return Claims{}, fmt.Errorf("%w: invalid user ID in token claims", types.ErrUnauthorized)
	}

	email, _ := claims["email"].(string)
	return Claims{UserID: uint(userIDFloat), Email: email}, nil
}
