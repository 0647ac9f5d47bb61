package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/bl-hori/auth-platform-sub003/decision/pkg/decision"
)

const validationErrorValueRequired = "value is required"

// ValidPrincipalTypes defines the accepted principal types
var ValidPrincipalTypes = []string{"user", "service"}

var validPrincipalTypesAny = func() []interface{} {
	result := make([]interface{}, len(ValidPrincipalTypes))
	for i, s := range ValidPrincipalTypes {
		result[i] = s
	}
	return result
}()

// MaxBatchSize caps the number of requests in one batch call.
const MaxBatchSize = 50

// APIPrincipal identifies the subject of an authorization request
type APIPrincipal struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// APIResource identifies the object of an authorization request
type APIResource struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// APIAuthorizeRequest is the request body for a single decision
type APIAuthorizeRequest struct {
	OrganizationID string            `json:"organizationId"`
	Principal      APIPrincipal      `json:"principal"`
	Action         string            `json:"action"`
	Resource       APIResource       `json:"resource"`
	Context        map[string]string `json:"context,omitempty"`
}

// Validate validates the authorize request
func (r *APIAuthorizeRequest) Validate() error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.OrganizationID,
			validation.Required.Error(validationErrorValueRequired),
			is.UUID.Error("must be a UUID")),
		validation.Field(&r.Action, validation.Required.Error(validationErrorValueRequired)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&r.Principal,
		validation.Field(&r.Principal.Type,
			validation.Required.Error(validationErrorValueRequired),
			validation.In(validPrincipalTypesAny...).Error("must be one of [user service]")),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&r.Resource,
		validation.Field(&r.Resource.Type, validation.Required.Error(validationErrorValueRequired)),
	)
}

// ToDecisionRequest converts the API request into the core request type.
// Called after Validate, so the UUID parses.
func (r *APIAuthorizeRequest) ToDecisionRequest() *decision.Request {
	orgID, _ := uuid.Parse(r.OrganizationID)
	principalID, _ := uuid.Parse(r.Principal.ID)
	return &decision.Request{
		OrganizationID: orgID,
		Principal:      decision.Principal{ID: principalID, Type: r.Principal.Type},
		Action:         r.Action,
		Resource: decision.Resource{
			Type:       r.Resource.Type,
			ID:         r.Resource.ID,
			Attributes: r.Resource.Attributes,
		},
		Context: r.Context,
	}
}

// APIAuthorizeResponse is the response body for a single decision
type APIAuthorizeResponse struct {
	Decision          string            `json:"decision"`
	Reason            string            `json:"reason"`
	EvaluatedPolicies []string          `json:"evaluatedPolicies"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	LatencyMs         int64             `json:"latencyMs"`
	Cached            bool              `json:"cached"`
}

// NewAPIAuthorizeResponse creates an APIAuthorizeResponse from a core response
func NewAPIAuthorizeResponse(resp *decision.Response) *APIAuthorizeResponse {
	return &APIAuthorizeResponse{
		Decision:          resp.Decision,
		Reason:            resp.Reason,
		EvaluatedPolicies: resp.EvaluatedPolicies,
		Metadata:          resp.Metadata,
		LatencyMs:         resp.LatencyMs,
		Cached:            resp.Cached,
	}
}

// APIBatchAuthorizeRequest is the request body for a batch decision
type APIBatchAuthorizeRequest struct {
	Requests []APIAuthorizeRequest `json:"requests"`
}

// Validate validates batch shape; per-element validation happens during
// evaluation so one bad element does not fail the batch.
func (r *APIBatchAuthorizeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Requests,
			validation.Required.Error(validationErrorValueRequired),
			validation.Length(1, MaxBatchSize)),
	)
}

// APIBatchResult is one element of a batch response: a decision or a
// problem document, never both.
type APIBatchResult struct {
	Response *APIAuthorizeResponse `json:"response,omitempty"`
	Error    interface{}           `json:"error,omitempty"`
}

// APIBatchAuthorizeResponse is the response body for a batch decision,
// order-aligned with the request list.
type APIBatchAuthorizeResponse struct {
	Results []APIBatchResult `json:"results"`
}
