package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"broker_service/internal/lib/hasher"
	"broker_service/internal/lib/jwt"
	sl "broker_service/internal/lib/logger"
	"broker_service/internal/models"
	"broker_service/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("refresh token revoked")
)

const (
	eventRegistered = "user.registered"
	eventLogin      = "user.login"
	eventLogout     = "user.logout"
)

type Auth struct {
	log         *slog.Logger
	codec       *jwt.Codec
	usrSaver    UserSaver
	usrProvider UserProvider
	ledger      TokenLedger
	revocations RevocationList
	events      EventPublisher
}

type UserSaver interface {
	SaveUser(ctx context.Context, username, email, passwordHash string) (models.User, error)
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// TokenLedger is the persisted record of issued refresh tokens. Revocation
// is monotonic; rows are never deleted, so "unknown" and "revoked" stay
// distinguishable.
type TokenLedger interface {
	SaveRefreshToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
	RevokeRefreshToken(ctx context.Context, token string) (bool, error)
}

// RevocationList is a fast-path cache in front of the ledger. A miss means
// nothing; the ledger is always consulted before a token is accepted.
type RevocationList interface {
	MarkRevoked(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.AuthEvent) error
}

func New(
	log *slog.Logger,
	codec *jwt.Codec,
	userSaver UserSaver,
	userProvider UserProvider,
	ledger TokenLedger,
	revocations RevocationList,
	events EventPublisher,
) *Auth {
	return &Auth{
		log:         log,
		codec:       codec,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		ledger:      ledger,
		revocations: revocations,
		events:      events,
	}
}

// Register creates a new user. Email is checked before username, so a
// request that duplicates both reports the email conflict.
func (a *Auth) Register(ctx context.Context, username, email, password string) (models.User, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	if _, err := a.usrProvider.UserByEmail(ctx, email); err == nil {
		log.Warn("email already registered")
		return models.User{}, storage.ErrEmailTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to check email", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := a.usrProvider.UserByUsername(ctx, username); err == nil {
		log.Warn("username already registered")
		return models.User{}, storage.ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to check username", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrSaver.SaveUser(ctx, username, email, passwordHash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) || errors.Is(err, storage.ErrUsernameTaken) {
			log.Warn("user already exists", sl.Err(err))
			return models.User{}, err
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	a.publish(ctx, log, user, eventRegistered)

	log.Info("user registered", slog.Int64("uid", user.ID))

	return user, nil
}

// Login verifies credentials and returns a signed access/refresh token
// pair. The refresh token is recorded in the ledger with its expiry.
func (a *Auth) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return "", "", storage.ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	if !hasher.Verify(password, user.PasswordHash) {
		log.Info("invalid credentials")
		return "", "", ErrInvalidCredentials
	}

	accessToken, err = a.codec.NewAccessToken(user)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err = a.codec.NewRefreshToken(user)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	err = a.ledger.SaveRefreshToken(ctx, refreshToken, user.ID, time.Now().Add(a.codec.RefreshTTL()))
	if err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	a.publish(ctx, log, user, eventLogin)

	log.Info("user logged in successfully", slog.Int64("uid", user.ID))

	return accessToken, refreshToken, nil
}

// Refresh exchanges a known, unrevoked refresh token for a new access
// token. Unknown and revoked tokens are reported identically.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (string, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	if err := a.checkRevocation(ctx, log, refreshToken); err != nil {
		return "", err
	}

	accessToken, err := a.codec.Rotate(refreshToken)
	if err != nil {
		log.Warn("failed to rotate refresh token", sl.Err(err))
		return "", err
	}

	log.Info("tokens refreshed")

	return accessToken, nil
}

// Logout revokes the refresh token. A second logout with the same token
// fails the same way as a logout with an unknown token.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if err := a.checkRevocation(ctx, log, refreshToken); err != nil {
		return err
	}

	if _, err := a.ledger.RevokeRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrTokenRevoked
		}

		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.revocations.MarkRevoked(ctx, refreshToken, a.codec.RefreshTTL()); err != nil {
		// Blacklist is a cache; the ledger already holds the revocation.
		log.Warn("failed to blacklist refresh token", sl.Err(err))
	}

	if claims, err := a.codec.Parse(refreshToken); err == nil {
		if uid, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			a.publish(ctx, log, models.User{ID: uid, Email: claims.Email}, eventLogout)
		}
	}

	log.Info("user logged out successfully")

	return nil
}

// Identity resolves the user an access token was issued to.
func (a *Auth) Identity(ctx context.Context, accessToken string) (models.User, error) {
	const op = "auth.Identity"

	log := a.log.With(slog.String("op", op))

	claims, err := a.codec.Parse(accessToken)
	if err != nil {
		return models.User{}, err
	}

	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		log.Warn("malformed subject claim", sl.Err(err))
		return models.User{}, jwt.ErrTokenInvalid
	}

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (a *Auth) checkRevocation(ctx context.Context, log *slog.Logger, refreshToken string) error {
	if revoked, err := a.revocations.IsRevoked(ctx, refreshToken); err != nil {
		log.Warn("revocation list unavailable", sl.Err(err))
	} else if revoked {
		log.Warn("refresh token is blacklisted")
		return ErrTokenRevoked
	}

	revoked, err := a.ledger.IsTokenRevoked(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token not found")
			return ErrTokenRevoked
		}

		log.Error("failed to check refresh token", sl.Err(err))
		return err
	}

	if revoked {
		log.Warn("refresh token is revoked")
		return ErrTokenRevoked
	}

	return nil
}

func (a *Auth) publish(ctx context.Context, log *slog.Logger, user models.User, action string) {
	event := models.AuthEvent{
		UserID: user.ID,
		Email:  user.Email,
		Action: action,
		At:     time.Now(),
	}

	if err := a.events.Publish(ctx, event); err != nil {
		log.Warn("failed to publish auth event", sl.Err(err))
	}
}
