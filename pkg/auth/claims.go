package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

// Principal is who a token speaks for. Platform admins carry no company; every
// other role is scoped to exactly one tenant.
type Principal struct {
	UserID    uuid.UUID
	CompanyID *uuid.UUID
	Role      enums.ActorRole
}

// AccessTokenClaims is the JWT body presented by clients.
type AccessTokenClaims struct {
	UserID    uuid.UUID       `json:"user_id"`
	CompanyID *uuid.UUID      `json:"company_id,omitempty"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal strips the registered claims.
func (c *AccessTokenClaims) Principal() Principal {
	return Principal{UserID: c.UserID, CompanyID: c.CompanyID, Role: c.Role}
}

// Validate runs after the parser's own exp/iss checks.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("user_id claim missing")
	}
	return c.Principal().check()
}

func (p Principal) check() error {
	// system is reserved for workers and never issued to clients
	if !p.Role.IsValid() || p.Role == enums.ActorRoleSystem {
		return fmt.Errorf("invalid actor role %q", p.Role)
	}
	scoped := p.CompanyID != nil && *p.CompanyID != uuid.Nil
	if p.Role != enums.ActorRoleAdmin && !scoped {
		return fmt.Errorf("role %q requires a company", p.Role)
	}
	return nil
}
