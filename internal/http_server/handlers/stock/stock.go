package stock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"broker_service/internal/http_server/middleware/identity"
	resp "broker_service/internal/lib/api/response"
	sl "broker_service/internal/lib/logger"
	"broker_service/internal/stocks"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Read handlers for the authenticated user's holdings, positions and
// orders. All three go through the gateway's shared circuit breaker; an
// open breaker turns into a 503 without touching storage.

func Holdings(log *slog.Logger, service *stocks.Service) http.HandlerFunc {
	return serveList(log, "handlers.stock.Holdings", service.Holdings)
}

func Positions(log *slog.Logger, service *stocks.Service) http.HandlerFunc {
	return serveList(log, "handlers.stock.Positions", service.Positions)
}

func Orders(log *slog.Logger, service *stocks.Service) http.HandlerFunc {
	return serveList(log, "handlers.stock.Orders", service.Orders)
}

func serveList[T any](log *slog.Logger, op string, query func(ctx context.Context, userID int64) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := identity.UserFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Not authenticated"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		items, err := query(ctx, user.ID)
		if err != nil {
			if errors.Is(err, stocks.ErrUnavailable) {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, resp.Error("stock service temporarily unavailable"))

				return
			}

			log.Error("failed to fetch stock data", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if items == nil {
			items = []T{}
		}

		render.JSON(w, r, items)
	}
}
