package callercontext

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/api/middleware"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	CompanyID *uuid.UUID
}

// Resolve extracts the caller seeded by the auth middleware.
func Resolve(r *http.Request) (Caller, error) {
	ctx := r.Context()
	rawUser := middleware.UserIDFromContext(ctx)
	if rawUser == "" {
		return Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return Caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return Caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}

	caller := Caller{UserID: userID, Role: role}
	if raw := middleware.CompanyIDFromContext(ctx); raw != "" {
		companyID, err := uuid.Parse(raw)
		if err != nil {
			return Caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid company id")
		}
		caller.CompanyID = &companyID
	}
	return caller, nil
}

// ResolveCompany extracts the caller and enforces a tenant-bound token.
func ResolveCompany(r *http.Request) (Caller, uuid.UUID, error) {
	caller, err := Resolve(r)
	if err != nil {
		return Caller{}, uuid.Nil, err
	}
	if caller.CompanyID == nil {
		return Caller{}, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "company context required")
	}
	return caller, *caller.CompanyID, nil
}

// UUIDParam parses a required UUID path parameter.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
