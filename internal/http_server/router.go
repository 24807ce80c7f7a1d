package httpserver

import (
	"log/slog"
	"net/http"

	"broker_service/internal/auth"
	"broker_service/internal/http_server/handlers/login"
	"broker_service/internal/http_server/handlers/logout"
	"broker_service/internal/http_server/handlers/refresh"
	"broker_service/internal/http_server/handlers/register"
	"broker_service/internal/http_server/handlers/stock"
	"broker_service/internal/http_server/middleware/identity"
	resp "broker_service/internal/lib/api/response"
	rateLimit "broker_service/internal/middleware/ratelimit"
	"broker_service/internal/stocks"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

func NewRouter(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	stockService *stocks.Service,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, resp.OK())
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register", register.New(log, validate, authService))
		r.With(rateLimit.Login()).Post("/login", login.New(log, validate, authService))
		r.With(rateLimit.Refresh()).Get("/refresh", refresh.New(log, authService))
		r.With(rateLimit.Logout()).Post("/logout", logout.New(log, authService))
	})

	r.Route("/stock", func(r chi.Router) {
		r.Use(identity.New(log, authService))

		r.Get("/holdings", stock.Holdings(log, stockService))
		r.Get("/positions", stock.Positions(log, stockService))
		r.Get("/orders", stock.Orders(log, stockService))
	})

	return r
}
