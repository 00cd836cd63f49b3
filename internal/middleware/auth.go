// Package middleware содержит HTTP middleware для сервиса парковки.
package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const usernameKey contextKey = "username"

const authRealm = `Basic realm="parking", charset="UTF-8"`

// Authenticator проверяет учётные данные оператора.
type Authenticator interface {
	Login(username, password string) bool
}

// AuthMiddleware проверяет учётные данные оператора в каждом запросе (HTTP Basic).
type AuthMiddleware struct {
	auth Authenticator
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Middleware проверяет учётные данные и добавляет имя оператора в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !a.auth.Login(username, password) {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUsernameFromContext извлекает имя оператора из контекста запроса.
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok
}
