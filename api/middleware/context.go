package middleware

import (
	"context"

	"github.com/qrseal/qrseal-backend/pkg/auth"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
	companyIDKey
)

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, userIDKey) }

func RoleFromContext(ctx context.Context) string { return stringValue(ctx, roleKey) }

// CompanyIDFromContext is empty for platform admins.
func CompanyIDFromContext(ctx context.Context) string { return stringValue(ctx, companyIDKey) }

func with(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return with(ctx, userIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return with(ctx, roleKey, role)
}

func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return with(ctx, companyIDKey, companyID)
}

// withPrincipal stores p on ctx and mirrors it into the log fields.
func withPrincipal(ctx context.Context, p auth.Principal, logg *logger.Logger) context.Context {
	ctx = WithUserID(ctx, p.UserID.String())
	ctx = WithRole(ctx, string(p.Role))
	if logg != nil {
		ctx = logg.WithUserID(ctx, p.UserID.String())
		ctx = logg.WithActorRole(ctx, string(p.Role))
	}
	if p.CompanyID != nil {
		ctx = WithCompanyID(ctx, p.CompanyID.String())
		if logg != nil {
			ctx = logg.WithCompanyID(ctx, p.CompanyID.String())
		}
	}
	return ctx
}
