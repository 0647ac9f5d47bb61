package credential

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
)

// ErrNoCredential is returned by a strategy when the request carries no
// credential of its type. The resolver then tries the next strategy; any
// other error is conclusive and stops the chain.
var ErrNoCredential = errors.New("no credential of this type present")

// Strategy authenticates one credential type. Presence of the credential
// makes the strategy's verdict final: a present-but-invalid credential
// must fail the request, never fall through to a later strategy.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

// Resolver walks an ordered strategy chain. Order is fixed at
// construction and never data-dependent.
type Resolver struct {
	strategies []Strategy
}

// NewResolver creates a resolver over the given strategies, tried in order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve authenticates the request. The first strategy whose credential
// is present decides the outcome. A request with no recognizable
// credential fails with credential_absent.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Principal, error) {
	for _, s := range r.strategies {
		p, err := s.Authenticate(ctx, req)
		if errors.Is(err, ErrNoCredential) {
			continue
		}
		if err != nil {
			log.Ctx(ctx).Debug().Str("strategy", s.Name()).Err(err).Msg("credential rejected")
			return nil, err
		}
		return p, nil
	}
	return nil, util.NewAPIError(util.KindCredentialAbsent, "no credential presented")
}
