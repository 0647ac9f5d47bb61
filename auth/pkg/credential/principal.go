package credential

import (
	"context"

	"github.com/google/uuid"
)

// Authentication methods a principal can arrive with.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"
)

// RoleAPIClient is the role every API key principal carries.
const RoleAPIClient = "API_CLIENT"

// Principal is the authenticated caller attached to a request after the
// credential chain concludes. Exactly one organization per principal.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Subject        string
	Email          string
	Method         string
	// Roles carries the token's roles claim, or RoleAPIClient for API
	// key principals. Informational; stored assignments decide access.
	Roles []string
	// APIKeyID is set only for api_key principals.
	APIKeyID uuid.UUID
}

type principalCtxKey struct{}

// WithPrincipal attaches the principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the request principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return p, ok
}

// ClientInfo records where a request physically came from, for audit
// records emitted below the HTTP layer.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type clientInfoCtxKey struct{}

// WithClientInfo attaches the caller's network identity to the context.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoCtxKey{}, info)
}

// ClientInfoFromContext returns the caller's network identity, if known.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoCtxKey{}).(ClientInfo)
	return info
}
