// Package token reads user identity from JWTs issued by the auth service.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/iurnickita/cashback/internal/token/config"
)

var (
	ErrTokenInvalid = errors.New("token is not valid")
	ErrNoUserCode   = errors.New("token has no user code")
	ErrNoSecret     = errors.New("token secret key is not set")
)

const defaultTokenExp = 24 * time.Hour

type Claims struct {
	jwt.RegisteredClaims
	UserCode string `json:"user_code"`
}

type Token struct {
	secret []byte
	exp    time.Duration
}

func NewToken(cfg config.Config) (*Token, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNoSecret
	}
	exp := cfg.TokenExp
	if exp <= 0 {
		exp = defaultTokenExp
	}
	return &Token{secret: []byte(cfg.SecretKey), exp: exp}, nil
}

// BuildJWTString подписывает токен для пользователя.
// Выдача токенов - дело сервиса авторизации, здесь для тестов и утилит.
func (t *Token) BuildJWTString(userCode string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.exp)),
		},
		UserCode: userCode,
	})

	return token.SignedString(t.secret)
}

// GetUserCode проверяет подпись и срок действия и возвращает id пользователя.
func (t *Token) GetUserCode(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", ErrTokenInvalid
	}
	if claims.UserCode == "" {
		return "", ErrNoUserCode
	}
	return claims.UserCode, nil
}
