package jwt

import (
	"testing"
	"time"

	"broker_service/internal/models"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testUser = models.User{
	ID:       42,
	Username: "alice",
	Email:    "alice@x.com",
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	c := New("test-secret", 10*time.Minute, 7*24*time.Hour)

	tok, err := c.NewAccessToken(testUser)
	require.NoError(t, err)

	claims, err := c.Parse(tok)
	require.NoError(t, err)

	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "alice@x.com", claims.Email)
	require.NotEmpty(t, claims.ID)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestAccessAndRefreshTokensDistinct(t *testing.T) {
	t.Parallel()

	c := New("test-secret", 10*time.Minute, 7*24*time.Hour)

	access, err := c.NewAccessToken(testUser)
	require.NoError(t, err)

	refresh, err := c.NewRefreshToken(testUser)
	require.NoError(t, err)

	require.NotEqual(t, access, refresh)

	accessClaims, err := c.Parse(access)
	require.NoError(t, err)

	refreshClaims, err := c.Parse(refresh)
	require.NoError(t, err)

	require.Equal(t, accessClaims.Subject, refreshClaims.Subject)
	require.True(t, refreshClaims.ExpiresAt.After(accessClaims.ExpiresAt.Time))
}

func TestParseExpired(t *testing.T) {
	t.Parallel()

	c := New("test-secret", -1*time.Second, 7*24*time.Hour)

	tok, err := c.NewAccessToken(testUser)
	require.NoError(t, err)

	_, err = c.Parse(tok)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseWrongSecret(t *testing.T) {
	t.Parallel()

	c := New("right-secret", 10*time.Minute, 7*24*time.Hour)

	tok, err := c.NewAccessToken(testUser)
	require.NoError(t, err)

	other := New("wrong-secret", 10*time.Minute, 7*24*time.Hour)

	_, err = other.Parse(tok)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	c := New("test-secret", 10*time.Minute, 7*24*time.Hour)

	_, err := c.Parse("not.a.jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseMissingSubject(t *testing.T) {
	t.Parallel()

	c := New("test-secret", 10*time.Minute, 7*24*time.Hour)

	// Well-signed token without a sub claim.
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	signed, err := token.SignedString(c.secret)
	require.NoError(t, err)

	_, err = c.Parse(signed)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotate(t *testing.T) {
	t.Parallel()

	c := New("test-secret", 10*time.Minute, 7*24*time.Hour)

	refresh, err := c.NewRefreshToken(testUser)
	require.NoError(t, err)

	access, err := c.Rotate(refresh)
	require.NoError(t, err)

	claims, err := c.Parse(access)
	require.NoError(t, err)

	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestRotateRejectsTampered(t *testing.T) {
	t.Parallel()

	c := New("test-secret", 10*time.Minute, 7*24*time.Hour)

	other := New("other-secret", 10*time.Minute, 7*24*time.Hour)

	forged, err := other.NewRefreshToken(testUser)
	require.NoError(t, err)

	_, err = c.Rotate(forged)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
