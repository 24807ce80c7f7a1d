package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"broker_service/internal/models"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims is the fixed token payload: registered claims (sub, iat, exp, jti)
// plus username and email. Subject holds the decimal user id.
type Claims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Codec signs and verifies access and refresh tokens. Both token kinds
// share the same secret and payload shape and differ only in lifetime.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(secret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (c *Codec) NewAccessToken(user models.User) (string, error) {
	return c.issue(strconv.FormatInt(user.ID, 10), user.Username, user.Email, c.accessTTL)
}

func (c *Codec) NewRefreshToken(user models.User) (string, error) {
	return c.issue(strconv.FormatInt(user.ID, 10), user.Username, user.Email, c.refreshTTL)
}

func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// Parse verifies the signature and expiry and returns the embedded claims.
func (c *Codec) Parse(tokenStr string) (Claims, error) {
	const op = "jwt.Parse"

	var claims Claims

	token, err := jwtlib.ParseWithClaims(tokenStr, &claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}

		return Claims{}, ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}

// Rotate exchanges a valid refresh token for a fresh access token carrying
// the same identity. Revocation is checked by the caller, not here.
func (c *Codec) Rotate(refreshToken string) (string, error) {
	claims, err := c.Parse(refreshToken)
	if err != nil {
		return "", err
	}

	return c.issue(claims.Subject, claims.Username, claims.Email, c.accessTTL)
}

func (c *Codec) issue(subject, username, email string, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Username: username,
		Email:    email,
	})

	return token.SignedString(c.secret)
}
