package credential

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
)

// APIKeyHeader carries service credentials for non-interactive callers.
const APIKeyHeader = "X-API-Key"

// ResolvedKey is the record a key lookup returns.
type ResolvedKey struct {
	KeyID          uuid.UUID
	OrganizationID uuid.UUID
	Name           string
}

// KeyLookup resolves raw key material to its record. A miss (unknown or
// revoked key) is reported with found=false, not an error.
type KeyLookup interface {
	Lookup(ctx context.Context, rawKey string) (*ResolvedKey, bool, error)
}

// APIKeyStrategy authenticates X-API-Key headers against stored digests.
// It runs after the bearer strategy in the chain.
type APIKeyStrategy struct {
	keys KeyLookup
}

// NewAPIKeyStrategy creates an API key strategy over the given lookup.
func NewAPIKeyStrategy(keys KeyLookup) *APIKeyStrategy {
	return &APIKeyStrategy{keys: keys}
}

// Name implements Strategy.
func (s *APIKeyStrategy) Name() string { return MethodAPIKey }

// Authenticate resolves the X-API-Key header to a service principal.
func (s *APIKeyStrategy) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if raw == "" {
		return nil, ErrNoCredential
	}

	key, found, err := s.keys.Lookup(ctx, raw)
	if err != nil {
		return nil, util.NewAPIError(util.KindStorageUnavailable, "api key lookup failed")
	}
	if !found {
		log.Ctx(ctx).Debug().Str("key", util.MaskKey(raw)).Msg("unknown api key")
		return nil, util.NewAPIError(util.KindApiKeyUnknown, "api key is not recognized")
	}

	return &Principal{
		OrganizationID: key.OrganizationID,
		Subject:        "api-key:" + key.Name,
		Method:         MethodAPIKey,
		Roles:          []string{RoleAPIClient},
		APIKeyID:       key.KeyID,
	}, nil
}
