package logout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"broker_service/internal/auth"
	"broker_service/internal/http_server/middleware/identity"
	resp "broker_service/internal/lib/api/response"
	sl "broker_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

// New revokes the refresh token in the Authorization header. A token that
// is unknown or already revoked gets the same 401 as refresh.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

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

		if err := authService.Logout(ctx, token); err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token revoked"))

				return
			}

			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged out successfully")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "logged out successfully",
		})
	}
}
