package stocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"broker_service/internal/models"

	"github.com/sony/gobreaker/v2"
)

var ErrUnavailable = errors.New("stock service temporarily unavailable")

type StockProvider interface {
	Holdings(ctx context.Context, userID int64) ([]models.Holding, error)
	Positions(ctx context.Context, userID int64) ([]models.Position, error)
	Orders(ctx context.Context, userID int64) ([]models.Order, error)
}

// Service guards the three stock read operations with one shared circuit
// breaker: consecutive failures on any operation block all of them until
// the cooldown elapses and a single trial call succeeds.
type Service struct {
	log      *slog.Logger
	provider StockProvider
	breaker  *gobreaker.CircuitBreaker[any]
}

func New(log *slog.Logger, provider StockProvider, failureThreshold uint32, cooldown time.Duration) *Service {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stock-reads",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Service{
		log:      log,
		provider: provider,
		breaker:  breaker,
	}
}

func (s *Service) Holdings(ctx context.Context, userID int64) ([]models.Holding, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.provider.Holdings(ctx, userID)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}

	return v.([]models.Holding), nil
}

func (s *Service) Positions(ctx context.Context, userID int64) ([]models.Position, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.provider.Positions(ctx, userID)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}

	return v.([]models.Position), nil
}

func (s *Service) Orders(ctx context.Context, userID int64) ([]models.Order, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.provider.Orders(ctx, userID)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}

	return v.([]models.Order), nil
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}

	return err
}
