package credential

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/jwks"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
)

// ClockSkewLeeway is the tolerance applied to exp and nbf validation.
const ClockSkewLeeway = 30 * time.Second

const bearerPrefix = "bearer "

// OrganizationClaim is the custom claim binding a token to its tenant.
const OrganizationClaim = "organization_id"

// KeyProvider supplies verification keys by kid. Satisfied by
// jwks.Keystore.
type KeyProvider interface {
	KeyFunc(ctx context.Context) jwt.Keyfunc
}

// UserProvisioner resolves a validated token subject to a local user,
// provisioning just-in-time on first sight.
type UserProvisioner interface {
	GetOrCreate(ctx context.Context, organizationID uuid.UUID, subject, email string) (uuid.UUID, error)
}

// BearerStrategy authenticates Authorization: Bearer tokens against the
// identity provider's signing keys.
type BearerStrategy struct {
	issuer      string
	audience    string
	keys        KeyProvider
	provisioner UserProvisioner
	parser      *jwt.Parser
}

// NewBearerStrategy creates a JWT strategy bound to one issuer and audience.
func NewBearerStrategy(issuer, audience string, keys KeyProvider, provisioner UserProvisioner) *BearerStrategy {
	return &BearerStrategy{
		issuer:      issuer,
		audience:    audience,
		keys:        keys,
		provisioner: provisioner,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithLeeway(ClockSkewLeeway),
			jwt.WithExpirationRequired(),
		),
	}
}

// Name implements Strategy.
func (s *BearerStrategy) Name() string { return MethodJWT }

// Authenticate validates a bearer token and resolves its principal. A
// request without a bearer Authorization header is not this strategy's
// to judge; anything after the Bearer prefix is.
func (s *BearerStrategy) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return nil, ErrNoCredential
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	if raw == "" {
		return nil, util.NewAPIError(util.KindJwtSignatureInvalid, "empty bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := s.parser.ParseWithClaims(raw, claims, s.keys.KeyFunc(ctx))
	if err != nil {
		return nil, mapJWTError(err)
	}

	orgRaw, ok := claims[OrganizationClaim].(string)
	if !ok || orgRaw == "" {
		return nil, util.NewAPIError(util.KindJwtMissingClaim, "token lacks "+OrganizationClaim+" claim")
	}
	orgID, err := uuid.Parse(orgRaw)
	if err != nil {
		return nil, util.NewAPIError(util.KindJwtMissingClaim, OrganizationClaim+" claim is not a UUID")
	}

	// sub is optional; a token without it must still identify its user by
	// email for the provisioning match.
	subject, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	if subject == "" && email == "" {
		return nil, util.NewAPIError(util.KindJwtMissingClaim, "token carries neither sub nor email claim")
	}

	roles := cast.ToStringSlice(claims["roles"])

	userID, err := s.provisioner.GetOrCreate(ctx, orgID, subject, email)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve user for token subject")
	}

	if subject == "" {
		subject = email
	}
	return &Principal{
		UserID:         userID,
		OrganizationID: orgID,
		Subject:        subject,
		Email:          email,
		Method:         MethodJWT,
		Roles:          roles,
	}, nil
}

// mapJWTError translates jwt library failures into stable error kinds.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return util.NewAPIError(util.KindJwtExpired, "token is expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return util.NewAPIError(util.KindJwtExpired, "token is not valid yet")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return util.NewAPIError(util.KindJwtAudienceMismatch, "token audience does not match this service")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return util.NewAPIError(util.KindJwtIssuerMismatch, "token issuer is not trusted")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return util.NewAPIError(util.KindJwtMissingClaim, "token lacks a required claim")
	case errors.Is(err, jwks.ErrUnknownKeyID):
		return util.NewAPIError(util.KindJwtSignatureInvalid, "token signed with an unknown key")
	default:
		return util.NewAPIError(util.KindJwtSignatureInvalid, "token signature could not be verified")
	}
}
