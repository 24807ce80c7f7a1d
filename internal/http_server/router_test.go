package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"broker_service/internal/auth"
	"broker_service/internal/lib/jwt"
	"broker_service/internal/models"
	"broker_service/internal/stocks"
	"broker_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

// In-memory doubles standing in for Postgres, Redis and RabbitMQ so the
// full router can be exercised with httptest.

type memStore struct {
	users  map[int64]models.User
	nextID int64
	tokens map[string]*models.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[int64]models.User),
		nextID: 1,
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (s *memStore) SaveUser(_ context.Context, username, email, passwordHash string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return models.User{}, storage.ErrEmailTaken
		}
		if u.Username == username {
			return models.User{}, storage.ErrUsernameTaken
		}
	}

	user := models.User{
		ID:           s.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.users[user.ID] = user
	s.nextID++

	return user, nil
}

func (s *memStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (s *memStore) UserByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (s *memStore) UserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) SaveRefreshToken(_ context.Context, token string, userID int64, expiresAt time.Time) error {
	if _, ok := s.tokens[token]; ok {
		return storage.ErrTokenExists
	}

	s.tokens[token] = &models.RefreshToken{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	return nil
}

func (s *memStore) IsTokenRevoked(_ context.Context, token string) (bool, error) {
	rt, ok := s.tokens[token]
	if !ok {
		return false, storage.ErrTokenNotFound
	}
	return rt.Revoked, nil
}

func (s *memStore) RevokeRefreshToken(_ context.Context, token string) (bool, error) {
	rt, ok := s.tokens[token]
	if !ok {
		return false, storage.ErrTokenNotFound
	}
	rt.Revoked = true
	return rt.Revoked, nil
}

type memRevocations struct {
	revoked map[string]bool
}

func (r *memRevocations) MarkRevoked(_ context.Context, token string, _ time.Duration) error {
	r.revoked[token] = true
	return nil
}

func (r *memRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	return r.revoked[token], nil
}

type memEvents struct{}

func (memEvents) Publish(_ context.Context, _ models.AuthEvent) error { return nil }

var errDBDown = errors.New("db down")

type memStocks struct {
	fail         bool
	holdingCalls int
}

func (p *memStocks) Holdings(_ context.Context, userID int64) ([]models.Holding, error) {
	p.holdingCalls++
	if p.fail {
		return nil, errDBDown
	}
	return []models.Holding{{ID: 1, UserID: userID, Symbol: "AAPL", Quantity: 10, AvgPrice: 150.0, CurrentPrice: 160.0}}, nil
}

func (p *memStocks) Positions(_ context.Context, userID int64) ([]models.Position, error) {
	if p.fail {
		return nil, errDBDown
	}
	return []models.Position{{ID: 1, UserID: userID, Symbol: "INFY", Quantity: 20}}, nil
}

func (p *memStocks) Orders(_ context.Context, userID int64) ([]models.Order, error) {
	if p.fail {
		return nil, errDBDown
	}
	return []models.Order{{ID: 1, UserID: userID, Symbol: "MSFT", OrderType: models.OrderTypeBuy, Status: models.OrderStatusExecuting}}, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *memStocks) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := jwt.New("test-secret", 10*time.Minute, 7*24*time.Hour)
	store := newMemStore()
	provider := &memStocks{}

	authService := auth.New(log, codec, store, store, store,
		&memRevocations{revoked: make(map[string]bool)}, memEvents{})
	stockService := stocks.New(log, provider, 3, 10*time.Second)

	return NewRouter(log, validator.New(), authService, stockService), provider
}

func doJSON(t *testing.T, r http.Handler, method, path string, body map[string]string, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}

	return rec, decoded
}

func registerAlice(t *testing.T, r http.Handler) {
	t.Helper()

	rec, _ := doJSON(t, r, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "pw1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func loginAlice(t *testing.T, r http.Handler) (access, refresh string) {
	t.Helper()

	rec, body := doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "pw1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", body["status"])
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "pw1",
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", body["username"])
	require.Equal(t, "alice@x.com", body["email"])
	require.Contains(t, body, "id")
	require.Contains(t, body, "created_at")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	registerAlice(t, r)

	rec, body := doJSON(t, r, http.MethodPost, "/auth/register", map[string]string{
		"username": "bob",
		"email":    "alice@x.com",
		"password": "pw2",
	}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Email already registered", body["error"])
}

func TestRegisterInvalidBody(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec, _ := doJSON(t, r, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice",
		"email":    "not-an-email",
		"password": "pw1",
	}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	registerAlice(t, r)

	rec, body := doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "pw1",
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])
	require.Equal(t, "bearer", body["token_type"])
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	registerAlice(t, r)

	rec, body := doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "wrong",
	}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Incorrect password", body["error"])
}

func TestLoginUnknownUser(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "pw1",
	}, "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "User not found", body["error"])
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	registerAlice(t, r)
	_, refresh := loginAlice(t, r)

	rec, body := doJSON(t, r, http.MethodGet, "/auth/refresh", nil, refresh)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body["access_token"])
	require.Equal(t, "bearer", body["token_type"])
}

func TestRefreshWithoutHeader(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/auth/refresh", nil, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Not authenticated", body["error"])
}

func TestLogoutThenRefresh(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	registerAlice(t, r)
	_, refresh := loginAlice(t, r)

	rec, body := doJSON(t, r, http.MethodPost, "/auth/logout", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "logged out successfully", body["message"])

	rec, body = doJSON(t, r, http.MethodGet, "/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Refresh token revoked", body["error"])

	// Repeated logout gets the same revoked error, not idempotent success.
	rec, body = doJSON(t, r, http.MethodPost, "/auth/logout", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Refresh token revoked", body["error"])
}

func TestStockUnauthorized(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	for _, endpoint := range []string{"/stock/holdings", "/stock/positions", "/stock/orders"} {
		rec, body := doJSON(t, r, http.MethodGet, endpoint, nil, "")

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Not authenticated", body["error"])
	}
}

func TestStockInvalidToken(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/stock/holdings", nil, "not.a.jwt")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid token", body["error"])
}

func TestStockHoldings(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	registerAlice(t, r)
	access, _ := loginAlice(t, r)

	req := httptest.NewRequest(http.MethodGet, "/stock/holdings", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var holdings []models.Holding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	require.Equal(t, "AAPL", holdings[0].Symbol)
	require.Equal(t, int64(1), holdings[0].UserID)
}

func TestStockBreakerOpens(t *testing.T) {
	t.Parallel()

	r, provider := newTestRouter(t)
	registerAlice(t, r)
	access, _ := loginAlice(t, r)

	provider.fail = true

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, r, http.MethodGet, "/stock/holdings", nil, access)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	}

	rec, body := doJSON(t, r, http.MethodGet, "/stock/holdings", nil, access)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "stock service temporarily unavailable", body["error"])
	require.Equal(t, 3, provider.holdingCalls)

	// Shared breaker: positions is short-circuited too.
	rec, _ = doJSON(t, r, http.MethodGet, "/stock/positions", nil, access)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegisterRateLimited(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	for i := 0; i < 5; i++ {
		rec, _ := doJSON(t, r, http.MethodPost, "/auth/register", map[string]string{
			"username": "user" + string(rune('a'+i)),
			"email":    "user" + string(rune('a'+i)) + "@x.com",
			"password": "pw1",
		}, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, _ := doJSON(t, r, http.MethodPost, "/auth/register", map[string]string{
		"username": "overflow",
		"email":    "overflow@x.com",
		"password": "pw1",
	}, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
