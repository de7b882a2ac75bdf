package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrseal/qrseal-backend/pkg/auth"
	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "qrseal-test", ExpirationMinutes: 60}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.ActorRole, companyID *uuid.UUID) string {
	t.Helper()
	codec, err := auth.NewCodec(cfg)
	require.NoError(t, err)
	token, err := codec.Mint(time.Now(), auth.Principal{UserID: uuid.New(), CompanyID: companyID, Role: role})
	require.NoError(t, err)
	return token
}

// seen is what the wrapped handler observed on the request context.
type seen struct {
	reached bool
	user    string
	role    string
	company string
}

func throughAuth(cfg config.JWTConfig, header string) (*httptest.ResponseRecorder, seen) {
	var got seen
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		got = seen{true, UserIDFromContext(ctx), RoleFromContext(ctx), CompanyIDFromContext(ctx)}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

func TestAuthRejects(t *testing.T) {
	company := uuid.New()
	codec, err := auth.NewCodec(testJWT)
	require.NoError(t, err)
	stale, err := codec.Mint(time.Now().Add(-2*time.Hour), auth.Principal{UserID: uuid.New(), CompanyID: &company, Role: enums.ActorRoleCreator})
	require.NoError(t, err)

	cases := map[string]string{
		"no header":      "",
		"garbage token":  "Bearer invalid",
		"foreign secret": "Bearer " + mintTestToken(t, config.JWTConfig{Secret: "other", Issuer: testJWT.Issuer, ExpirationMinutes: 10}, enums.ActorRoleCreator, &company),
		"foreign issuer": "Bearer " + mintTestToken(t, config.JWTConfig{Secret: testJWT.Secret, Issuer: "elsewhere", ExpirationMinutes: 10}, enums.ActorRoleCreator, &company),
		"expired":        "Bearer " + stale,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, got := throughAuth(testJWT, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, got.reached)
		})
	}
}

func TestAuthLoadsPrincipal(t *testing.T) {
	company := uuid.New()
	rec, got := throughAuth(testJWT, "Bearer "+mintTestToken(t, testJWT, enums.ActorRoleAuthorizer, &company))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, got.user)
	assert.Equal(t, string(enums.ActorRoleAuthorizer), got.role)
	assert.Equal(t, company.String(), got.company)
}

func TestAuthAdminHasNoCompany(t *testing.T) {
	rec, got := throughAuth(testJWT, "Bearer "+mintTestToken(t, testJWT, enums.ActorRoleAdmin, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(enums.ActorRoleAdmin), got.role)
	assert.Empty(t, got.company)
}

func TestAuthFailsClosedOnBadConfig(t *testing.T) {
	rec, got := throughAuth(config.JWTConfig{}, "Bearer whatever")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, got.reached)
}

func TestRequireRoleAndCompanyContext(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	status := func(mw func(http.Handler) http.Handler, req *http.Request) int {
		rec := httptest.NewRecorder()
		mw(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.ActorRoleCompany)))
	assert.Equal(t, http.StatusForbidden, status(RequireRole(nil, enums.ActorRoleAdmin), req))
	assert.Equal(t, http.StatusNoContent, status(RequireRole(nil, enums.ActorRoleAdmin, enums.ActorRoleCompany), req))
	assert.Equal(t, http.StatusForbidden, status(CompanyContext(nil), req))

	req = req.WithContext(WithCompanyID(req.Context(), uuid.NewString()))
	assert.Equal(t, http.StatusNoContent, status(CompanyContext(nil), req))
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"abc":          "abc",
		"Bearer ":      "",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		got, ok := bearerToken(req)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}
