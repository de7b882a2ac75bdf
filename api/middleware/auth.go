package middleware

import (
	"net/http"
	"strings"

	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/pkg/auth"
	"github.com/qrseal/qrseal-backend/pkg/config"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

// Auth verifies the bearer token and seeds the request context with the
// caller's user, role and company. A bad JWT config fails every request closed.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	codec, codecErr := auth.NewCodec(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if codecErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, codecErr, "token verification unavailable"))
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := codec.Verify(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), claims.Principal(), logg)))
		})
	}
}

// bearerToken accepts "Bearer <jwt>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, rest, _ := strings.Cut(v, " ")
	if strings.EqualFold(scheme, "bearer") {
		v = strings.TrimSpace(rest)
	}
	return v, v != ""
}
