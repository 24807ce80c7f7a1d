package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"broker_service/internal/auth"
	"broker_service/internal/http_server/middleware/identity"
	resp "broker_service/internal/lib/api/response"
	"broker_service/internal/lib/jwt"
	sl "broker_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// New exchanges the refresh token in the Authorization header for a new
// access token.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token, ok := identity.BearerToken(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Not authenticated"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		accessToken, err := authService.Refresh(ctx, token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenRevoked):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token revoked"))
			case errors.Is(err, jwt.ErrTokenExpired):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Token Expired"))
			case errors.Is(err, jwt.ErrTokenInvalid):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid Token"))
			default:
				log.Error("failed to refresh tokens", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Tokens refreshed successfully")

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			AccessToken: accessToken,
			TokenType:   "bearer",
		})
	}
}
