package auth

import (
	"context"
	"strings"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx"
)

// Role claim values recognised by the API.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity captures the authenticated principal extracted from a verified token.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Actor maps the identity onto the order workflow. Admin wins when both roles are present.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	role := domain.ActorRoleCustomer
	if i.HasRole(RoleAdmin) {
		role = domain.ActorRoleAdmin
	}
	return domain.Actor{ID: i.UID, Role: role}
}

type contextKey string

const identityContextKey contextKey = "github.com/Abdullah97825/Matjary-sub000/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity != nil {
		actor := identity.Actor()
		ctx = requestctx.WithActor(ctx, requestctx.ActorInfo{ID: actor.ID, Role: strings.ToLower(string(actor.Role))})
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ActorFromContext returns the workflow actor for the authenticated request.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return domain.Actor{}, false
	}
	return identity.Actor(), true
}
