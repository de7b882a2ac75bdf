package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/enums"
)

func newCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	c, err := NewCodec(config.JWTConfig{Secret: secret, Issuer: "qrseal", ExpirationMinutes: 30})
	require.NoError(t, err)
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	c := newCodec(t, "secret")
	company := uuid.New()
	in := Principal{UserID: uuid.New(), CompanyID: &company, Role: enums.ActorRoleAuthorizer}

	token, err := c.Mint(time.Now(), in)
	require.NoError(t, err)

	claims, err := c.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, in, claims.Principal())
	assert.Equal(t, "qrseal", claims.Issuer)
	assert.Equal(t, in.UserID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestCodecAdminHasNoCompany(t *testing.T) {
	c := newCodec(t, "secret")
	token, err := c.Mint(time.Now(), Principal{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	require.NoError(t, err)

	claims, err := c.Verify(token)
	require.NoError(t, err)
	assert.Nil(t, claims.CompanyID)
}

func TestCodecMintRejectsBadPrincipal(t *testing.T) {
	c := newCodec(t, "secret")
	nilCompany := uuid.Nil
	for name, p := range map[string]Principal{
		"creator without company": {UserID: uuid.New(), Role: enums.ActorRoleCreator},
		"nil company":             {UserID: uuid.New(), Role: enums.ActorRoleCompany, CompanyID: &nilCompany},
		"system role":             {UserID: uuid.New(), Role: enums.ActorRoleSystem},
		"unknown role":            {UserID: uuid.New(), Role: "owner"},
	} {
		_, err := c.Mint(time.Now(), p)
		assert.Error(t, err, name)
	}
}

func TestCodecVerifyFailures(t *testing.T) {
	c := newCodec(t, "secret")
	company := uuid.New()
	p := Principal{UserID: uuid.New(), CompanyID: &company, Role: enums.ActorRoleCompany}

	good, err := c.Mint(time.Now(), p)
	require.NoError(t, err)
	_, err = newCodec(t, "different").Verify(good)
	assert.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid), err)

	stale, err := c.Mint(time.Now().Add(-2*time.Hour), p)
	require.NoError(t, err)
	_, err = c.Verify(stale)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired), err)

	other, err := NewCodec(config.JWTConfig{Secret: "secret", Issuer: "someone-else", ExpirationMinutes: 30})
	require.NoError(t, err)
	foreign, err := other.Mint(time.Now(), p)
	require.NoError(t, err)
	_, err = c.Verify(foreign)
	assert.True(t, errors.Is(err, jwt.ErrTokenInvalidIssuer), err)
}

func TestCodecVerifyRejectsUnscopedClaims(t *testing.T) {
	c := newCodec(t, "secret")
	// signed with the right key but missing the company a creator needs
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.ActorRoleCreator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "qrseal",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = c.Verify(raw)
	assert.ErrorContains(t, err, "requires a company")
}

func TestNewCodecValidatesConfig(t *testing.T) {
	for _, cfg := range []config.JWTConfig{
		{Issuer: "i", ExpirationMinutes: 1},
		{Secret: "s", ExpirationMinutes: 1},
		{Secret: "s", Issuer: "i"},
	} {
		_, err := NewCodec(cfg)
		assert.Error(t, err)
	}
}
