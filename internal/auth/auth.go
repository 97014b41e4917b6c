// Package auth authenticates API requests by the user's JWT.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// UserCodeKey - заголовок, в который middleware кладет id пользователя
const (
	UserCodeKey     = "X-User-Code"
	cookieUserToken = "cashbackUserToken"
	bearerPrefix    = "Bearer "
)

var ErrNoToken = errors.New("auth token is missing")

// UserCoder is implemented by *token.Token.
type UserCoder interface {
	GetUserCode(tokenString string) (string, error)
}

type Auth interface {
	Middleware(h http.Handler) http.Handler
}

type auth struct {
	tokens UserCoder
	zaplog *zap.Logger
}

func NewAuth(tokens UserCoder, zaplog *zap.Logger) Auth {
	return &auth{tokens: tokens, zaplog: zaplog}
}

func (a *auth) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// получение id пользователя
		userCode, err := a.getUserCode(r)
		if err != nil {
			a.zaplog.Debug("unauthorized request", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем; присланный клиентом заголовок перезаписывается
		r.Header.Set(UserCodeKey, userCode)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	})
}

// UserCode returns the id stored by Middleware.
func UserCode(r *http.Request) string {
	return r.Header.Get(UserCodeKey)
}

func (a *auth) getUserCode(r *http.Request) (string, error) {
	// заголовок Authorization, затем куки пользователя
	var tokenString string
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		tokenString = strings.TrimPrefix(header, bearerPrefix)
	} else {
		tokenCookie, err := r.Cookie(cookieUserToken)
		if err != nil {
			return "", ErrNoToken
		}
		tokenString = tokenCookie.Value
	}

	return a.tokens.GetUserCode(tokenString)
}
