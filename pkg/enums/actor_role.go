package enums

// ActorRole is the capability role carried in access tokens.
type ActorRole string

const (
	ActorRoleCreator    ActorRole = "creator"
	ActorRoleAuthorizer ActorRole = "authorizer"
	ActorRoleCompany    ActorRole = "company"
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleSystem     ActorRole = "system"
)

var actorRoles = newValueSet("actor role",
	ActorRoleCreator, ActorRoleAuthorizer, ActorRoleCompany, ActorRoleAdmin, ActorRoleSystem)

func (r ActorRole) String() string { return string(r) }

func (r ActorRole) IsValid() bool { return actorRoles.has(r) }

// In reports whether r is one of roles.
func (r ActorRole) In(roles ...ActorRole) bool {
	return newValueSet("", roles...).has(r)
}

func ParseActorRole(value string) (ActorRole, error) { return actorRoles.parse(value) }
