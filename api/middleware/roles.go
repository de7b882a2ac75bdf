package middleware

import (
	"net/http"

	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

// RequireRole admits callers holding any of allowed.
func RequireRole(logg *logger.Logger, allowed ...enums.ActorRole) func(http.Handler) http.Handler {
	return gate(logg, "role not permitted", func(r *http.Request) bool {
		return enums.ActorRole(RoleFromContext(r.Context())).In(allowed...)
	})
}

// CompanyContext rejects callers whose token is not bound to a tenant.
func CompanyContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return gate(logg, "company context missing", func(r *http.Request) bool {
		return CompanyIDFromContext(r.Context()) != ""
	})
}

func gate(logg *logger.Logger, denial string, allow func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, denial))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
