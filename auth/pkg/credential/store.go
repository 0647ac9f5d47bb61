package credential

import (
	"context"

	"github.com/google/uuid"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// DAOProvisioner adapts the user DAO to the UserProvisioner interface.
// Provisioning runs inside the token's tenant, in one transaction.
type DAOProvisioner struct {
	session *db.Session
	users   model.UserDAO
}

// NewDAOProvisioner creates a provisioner over the user DAO.
func NewDAOProvisioner(session *db.Session, users model.UserDAO) *DAOProvisioner {
	return &DAOProvisioner{session: session, users: users}
}

// GetOrCreate implements UserProvisioner.
func (p *DAOProvisioner) GetOrCreate(ctx context.Context, organizationID uuid.UUID, subject, email string) (uuid.UUID, error) {
	ctx = db.WithTenant(ctx, organizationID)
	var userID uuid.UUID
	err := p.session.RunInTenantTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		u, _, err := p.users.GetOrCreate(ctx, tx, model.UserGetOrCreateInput{
			OrganizationID:    organizationID,
			Email:             email,
			ExternalSubjectID: subject,
		})
		if err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// DAOKeyLookup adapts the API key DAO to the KeyLookup interface. The
// lookup happens before a tenant is known, so it runs untenanted.
type DAOKeyLookup struct {
	keys model.APIKeyDAO
}

// NewDAOKeyLookup creates a key lookup over the API key DAO.
func NewDAOKeyLookup(keys model.APIKeyDAO) *DAOKeyLookup {
	return &DAOKeyLookup{keys: keys}
}

// Lookup implements KeyLookup.
func (l *DAOKeyLookup) Lookup(ctx context.Context, rawKey string) (*ResolvedKey, bool, error) {
	ak, err := l.keys.GetByRawKey(ctx, nil, rawKey)
	if db.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &ResolvedKey{
		KeyID:          ak.ID,
		OrganizationID: ak.OrganizationID,
		Name:           ak.Name,
	}, true, nil
}
