package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"broker_service/internal/auth"
	resp "broker_service/internal/lib/api/response"
	"broker_service/internal/lib/jwt"
	sl "broker_service/internal/lib/logger"
	"broker_service/internal/models"
	"broker_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

// BearerToken extracts the credential from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

// New resolves the access token in the Authorization header to a user and
// stores it in the request context.
func New(log *slog.Logger, authService *auth.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.identity.New"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := BearerToken(r)
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Not authenticated"))

				return
			}

			user, err := authService.Identity(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, resp.Error("Expired token"))
				case errors.Is(err, jwt.ErrTokenInvalid):
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, resp.Error("Invalid token"))
				case errors.Is(err, storage.ErrUserNotFound):
					render.Status(r, http.StatusNotFound)
					render.JSON(w, r, resp.Error("User not found"))
				default:
					log.Error("failed to resolve identity", sl.Err(err))

					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, resp.Error("Internal error"))
				}

				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
		})
	}
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}
