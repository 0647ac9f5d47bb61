package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// ValidPermissionEffects defines the accepted permission effects
var ValidPermissionEffects = []string{dbmodel.EffectAllow, dbmodel.EffectDeny}

var validPermissionEffectsAny = func() []interface{} {
	result := make([]interface{}, len(ValidPermissionEffects))
	for i, s := range ValidPermissionEffects {
		result[i] = s
	}
	return result
}()

// ========== Role ==========

// APIRoleCreateRequest is the request body for role creation
type APIRoleCreateRequest struct {
	Name         string  `json:"name"`
	ParentRoleID *string `json:"parentRoleId,omitempty"`
}

// Validate validates the role create request
func (r *APIRoleCreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required.Error(validationErrorValueRequired),
			validation.Length(1, 128)),
		validation.Field(&r.ParentRoleID, is.UUID.Error("must be a UUID")),
	)
}

// APIRoleUpdateRequest is the request body for role updates
type APIRoleUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	ParentRoleID *string `json:"parentRoleId,omitempty"`
}

// Validate validates the role update request
func (r *APIRoleUpdateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Length(1, 128)),
		validation.Field(&r.ParentRoleID, is.UUID.Error("must be a UUID")),
	)
}

// APIRole is the API representation of a role
type APIRole struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ParentRoleID *string `json:"parentRoleId,omitempty"`
	Depth        int     `json:"depth"`
	IsSystem     bool    `json:"isSystem"`
}

// NewAPIRole creates an APIRole from a storage model
func NewAPIRole(r *dbmodel.Role) *APIRole {
	out := &APIRole{
		ID:       r.ID.String(),
		Name:     r.Name,
		Depth:    r.Depth,
		IsSystem: r.IsSystem,
	}
	if r.ParentRoleID != nil {
		s := r.ParentRoleID.String()
		out.ParentRoleID = &s
	}
	return out
}

// ========== Permission ==========

// APIPermissionCreateRequest is the request body for permission creation
type APIPermissionCreateRequest struct {
	Name         string `json:"name"`
	ResourceType string `json:"resourceType"`
	Action       string `json:"action"`
	Effect       string `json:"effect"`
}

// Validate validates the permission create request
func (r *APIPermissionCreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required.Error(validationErrorValueRequired),
			validation.Length(1, 128)),
		validation.Field(&r.ResourceType, validation.Required.Error(validationErrorValueRequired)),
		validation.Field(&r.Action, validation.Required.Error(validationErrorValueRequired)),
		validation.Field(&r.Effect,
			validation.Required.Error(validationErrorValueRequired),
			validation.In(validPermissionEffectsAny...).Error("must be one of [allow deny]")),
	)
}

// APIPermission is the API representation of a permission
type APIPermission struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ResourceType string `json:"resourceType"`
	Action       string `json:"action"`
	Effect       string `json:"effect"`
}

// NewAPIPermission creates an APIPermission from a storage model
func NewAPIPermission(p *dbmodel.Permission) *APIPermission {
	return &APIPermission{
		ID:           p.ID.String(),
		Name:         p.Name,
		ResourceType: p.ResourceType,
		Action:       p.Action,
		Effect:       p.Effect,
	}
}

// ========== Role assignment ==========

// APIAssignmentCreateRequest is the request body for granting a role
type APIAssignmentCreateRequest struct {
	UserID       string     `json:"userId"`
	RoleID       string     `json:"roleId"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *string    `json:"resourceId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Validate validates the assignment create request. Resource scope is
// all-or-nothing.
func (r *APIAssignmentCreateRequest) Validate() error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.UserID,
			validation.Required.Error(validationErrorValueRequired),
			is.UUID.Error("must be a UUID")),
		validation.Field(&r.RoleID,
			validation.Required.Error(validationErrorValueRequired),
			is.UUID.Error("must be a UUID")),
	); err != nil {
		return err
	}
	if (r.ResourceType == nil) != (r.ResourceID == nil) {
		return validation.Errors{
			"resourceType": validation.NewError("validation_scope", "resourceType and resourceId must be set together"),
		}
	}
	return nil
}

// APIAssignment is the API representation of a role assignment
type APIAssignment struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	RoleID       string     `json:"roleId"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *string    `json:"resourceId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	GrantedBy    string     `json:"grantedBy"`
	GrantedAt    time.Time  `json:"grantedAt"`
}

// NewAPIAssignment creates an APIAssignment from a storage model
func NewAPIAssignment(ra *dbmodel.RoleAssignment) *APIAssignment {
	return &APIAssignment{
		ID:           ra.ID.String(),
		UserID:       ra.UserID.String(),
		RoleID:       ra.RoleID.String(),
		ResourceType: ra.ResourceType,
		ResourceID:   ra.ResourceID,
		ExpiresAt:    ra.ExpiresAt,
		GrantedBy:    ra.GrantedBy.String(),
		GrantedAt:    ra.GrantedAt,
	}
}

// ========== Policy ==========

// APIPolicyCreateRequest is the request body for policy creation
type APIPolicyCreateRequest struct {
	Name string `json:"name"`
}

// Validate validates the policy create request
func (r *APIPolicyCreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required.Error(validationErrorValueRequired),
			validation.Length(1, 128)),
	)
}

// APIPolicyPublishRequest is the request body for publishing a version
type APIPolicyPublishRequest struct {
	Content string `json:"content"`
}

// Validate validates the policy publish request
func (r *APIPolicyPublishRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required.Error(validationErrorValueRequired)),
	)
}

// APIPolicyVersion is the API representation of a policy version
type APIPolicyVersion struct {
	Version          int       `json:"version"`
	Checksum         string    `json:"checksum"`
	ValidationStatus string    `json:"validationStatus"`
	PublishedAt      time.Time `json:"publishedAt"`
	PublishedBy      string    `json:"publishedBy"`
}

// APIPolicy is the API representation of a policy
type APIPolicy struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Status         string             `json:"status"`
	CurrentVersion int                `json:"currentVersion"`
	Versions       []APIPolicyVersion `json:"versions,omitempty"`
}

// NewAPIPolicy creates an APIPolicy from a storage model
func NewAPIPolicy(p *dbmodel.Policy) *APIPolicy {
	out := &APIPolicy{
		ID:             p.ID.String(),
		Name:           p.Name,
		Status:         p.Status,
		CurrentVersion: p.CurrentVersion,
	}
	for _, v := range p.Versions {
		out.Versions = append(out.Versions, APIPolicyVersion{
			Version:          v.Version,
			Checksum:         v.Checksum,
			ValidationStatus: v.ValidationStatus,
			PublishedAt:      v.PublishedAt,
			PublishedBy:      v.PublishedBy.String(),
		})
	}
	return out
}

// ========== User ==========

// APIUserCreateRequest is the request body for user creation
type APIUserCreateRequest struct {
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Validate validates the user create request
func (r *APIUserCreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required.Error(validationErrorValueRequired),
			is.EmailFormat.Error("must be an email address")),
	)
}

// APIUser is the API representation of a user
type APIUser struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	ExternalSubjectID *string           `json:"externalSubjectId,omitempty"`
	Status            string            `json:"status"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// NewAPIUser creates an APIUser from a storage model
func NewAPIUser(u *dbmodel.User) *APIUser {
	return &APIUser{
		ID:                u.ID.String(),
		Email:             u.Email,
		ExternalSubjectID: u.ExternalSubjectID,
		Status:            u.Status,
		Attributes:        u.Attributes,
	}
}

// ========== API key ==========

// APIKeyCreateRequest is the request body for API key creation
type APIKeyCreateRequest struct {
	Name string `json:"name"`
}

// Validate validates the API key create request
func (r *APIKeyCreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required.Error(validationErrorValueRequired),
			validation.Length(1, 128)),
	)
}

// APIKeyCreateResponse returns the raw key material exactly once, at
// creation time. Only a digest is stored.
type APIKeyCreateResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	RawKey string `json:"rawKey"`
}

// ========== Audit query ==========

// APIAuditRecord is the API representation of an audit record
type APIAuditRecord struct {
	ID             string    `json:"id"`
	EventType      string    `json:"eventType"`
	Actor          string    `json:"actor"`
	ResourceType   string    `json:"resourceType,omitempty"`
	ResourceID     string    `json:"resourceId,omitempty"`
	Action         string    `json:"action,omitempty"`
	Decision       string    `json:"decision"`
	DecisionReason string    `json:"decisionReason,omitempty"`
	RequestDigest  string    `json:"requestDigest,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewAPIAuditRecord creates an APIAuditRecord from a storage model
func NewAPIAuditRecord(ar *dbmodel.AuditRecord) *APIAuditRecord {
	return &APIAuditRecord{
		ID:             ar.ID.String(),
		EventType:      ar.EventType,
		Actor:          ar.Actor,
		ResourceType:   ar.ResourceType,
		ResourceID:     ar.ResourceID,
		Action:         ar.Action,
		Decision:       ar.Decision,
		DecisionReason: ar.DecisionReason,
		RequestDigest:  ar.RequestDigest,
		Timestamp:      ar.Timestamp,
	}
}

// ========== Cache stats ==========

// MustUUID parses an already-validated UUID string.
func MustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
