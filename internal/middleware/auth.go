package middleware

import (
	"net/http"
	"strings"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/handlers"
	"github.com/vikasavnish/savepad/internal/services"
	"github.com/vikasavnish/savepad/internal/utils"
)

// AuthMiddleware checks for valid JWT token and adds the user id to context
func AuthMiddleware(jwtSecretKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "auth.middleware"

			authorizationHeader := r.Header.Get("Authorization")
			tokenString, ok := bearerToken(authorizationHeader)
			if !ok {
				handlers.ErrorResponse(w, r, domain.Unauthorized(op, "Token de acesso ausente."))
				return
			}

			// Parse and validate the token
			claims, err := services.ParseToken(tokenString, jwtSecretKey)
			if err != nil {
				handlers.ErrorResponse(w, r, err)
				return
			}

			ctx := utils.SetUserIDToContext(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
