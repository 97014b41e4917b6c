package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/cashback/internal/token/config"
)

func TestToken(t *testing.T) {
	tk, err := NewToken(config.Config{SecretKey: "secret"})
	require.NoError(t, err)

	tokenString, err := tk.BuildJWTString("u1")
	require.NoError(t, err)

	userCode, err := tk.GetUserCode(tokenString)
	require.NoError(t, err)
	require.Equal(t, "u1", userCode)

	// чужой ключ
	other, err := NewToken(config.Config{SecretKey: "other"})
	require.NoError(t, err)
	_, err = other.GetUserCode(tokenString)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tk.GetUserCode("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpired(t *testing.T) {
	tk, err := NewToken(config.Config{SecretKey: "secret", TokenExp: time.Hour})
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		UserCode:         "u1",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tk.GetUserCode(expired)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenWithoutUser(t *testing.T) {
	tk, err := NewToken(config.Config{SecretKey: "secret"})
	require.NoError(t, err)

	tokenString, err := tk.BuildJWTString("")
	require.NoError(t, err)
	_, err = tk.GetUserCode(tokenString)
	require.ErrorIs(t, err, ErrNoUserCode)

	_, err = NewToken(config.Config{})
	require.ErrorIs(t, err, ErrNoSecret)
}
