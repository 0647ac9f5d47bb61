package model

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
)

// APIKey maps a service credential to an organization. Only a SHA-256
// digest of the key material is stored.
type APIKey struct {
	bun.BaseModel `bun:"table:api_key,alias:ak"`

	ID             uuid.UUID  `bun:"id,pk"`
	OrganizationID uuid.UUID  `bun:"organization_id,type:uuid,notnull"`
	KeyDigest      string     `bun:"key_digest,notnull,unique"`
	Name           string     `bun:"name,notnull"`
	Revoked        bool       `bun:"revoked,notnull,default:false"`
	Created        time.Time  `bun:"created,nullzero,notnull,default:current_timestamp"`
	LastUsed       *time.Time `bun:"last_used,nullzero"`
}

// DigestAPIKey returns the stored digest for raw key material.
func DigestAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyDAO is an interface for interacting with the APIKey model
type APIKeyDAO interface {
	Create(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, name, rawKey string) (*APIKey, error)
	// GetByRawKey resolves raw key material to its record. Lookup is
	// pre-authentication, so it runs without a tenant in context.
	GetByRawKey(ctx context.Context, tx *db.Tx, rawKey string) (*APIKey, error)
	Revoke(ctx context.Context, tx *db.Tx, keyID uuid.UUID) error
}

// APIKeySQLDAO is an implementation of the APIKeyDAO interface
type APIKeySQLDAO struct {
	dbSession *db.Session
}

// NewAPIKeyDAO creates a new APIKeyDAO
func NewAPIKeyDAO(dbSession *db.Session) APIKeyDAO {
	return APIKeySQLDAO{dbSession: dbSession}
}

// Create stores a new API key digest for an organization.
func (aksd APIKeySQLDAO) Create(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, name, rawKey string) (*APIKey, error) {
	if err := db.CheckTenant(ctx, organizationID); err != nil {
		return nil, err
	}
	ak := &APIKey{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		KeyDigest:      DigestAPIKey(rawKey),
		Name:           name,
		Created:        db.GetCurTime(),
	}
	if _, err := db.GetIDB(tx, aksd.dbSession).NewInsert().Model(ak).Exec(ctx); err != nil {
		return nil, err
	}
	return ak, nil
}

// GetByRawKey resolves raw key material to its record.
func (aksd APIKeySQLDAO) GetByRawKey(ctx context.Context, tx *db.Tx, rawKey string) (*APIKey, error) {
	ak := &APIKey{}
	err := db.GetIDB(tx, aksd.dbSession).NewSelect().Model(ak).
		Where("ak.key_digest = ?", DigestAPIKey(rawKey)).
		Where("ak.revoked = false").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	return ak, nil
}

// Revoke marks a key unusable.
func (aksd APIKeySQLDAO) Revoke(ctx context.Context, tx *db.Tx, keyID uuid.UUID) error {
	ak := &APIKey{}
	err := db.GetIDB(tx, aksd.dbSession).NewSelect().Model(ak).Where("ak.id = ?", keyID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return db.ErrDoesNotExist
	}
	if err != nil {
		return err
	}
	if err := db.CheckTenant(ctx, ak.OrganizationID); err != nil {
		return err
	}
	_, err = db.GetIDB(tx, aksd.dbSession).NewUpdate().Model((*APIKey)(nil)).
		Set("revoked = true").
		Where("id = ?", keyID).
		Exec(ctx)
	return err
}
