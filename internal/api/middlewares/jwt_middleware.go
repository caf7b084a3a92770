package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	userKey
)

// JWTMiddleware validates the Authorization header with an HMAC secret and
// attaches the tenant_id and user_id claims to the request context.
func JWTMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing or invalid token", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			tenantID, _ := claims["tenant_id"].(string)
			if tenantID == "" {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}
			userID, _ := claims["user_id"].(string)

			ctx := WithIdentity(r.Context(), tenantID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity stores the caller's tenant and user on ctx.
func WithIdentity(ctx context.Context, tenantID, userID string) context.Context {
	ctx = context.WithValue(ctx, tenantKey, tenantID)
	return context.WithValue(ctx, userKey, userID)
}

func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantKey).(string)
	return v, ok && v != ""
}

func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}
