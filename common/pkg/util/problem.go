package util

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
)

// Kind is a stable, machine-readable error classification. The HTTP layer
// maps kinds to statuses and problem documents; internal callers branch on
// kind instead of matching error strings.
type Kind string

// Error kinds surfaced by the service.
const (
	KindInvalidRequest          Kind = "invalid_request"
	KindCredentialAbsent        Kind = "credential_absent"
	KindJwtSignatureInvalid     Kind = "jwt_signature_invalid"
	KindJwtExpired              Kind = "jwt_expired"
	KindJwtAudienceMismatch     Kind = "jwt_audience_mismatch"
	KindJwtIssuerMismatch       Kind = "jwt_issuer_mismatch"
	KindJwtMissingClaim         Kind = "jwt_missing_claim"
	KindApiKeyUnknown           Kind = "api_key_unknown"
	KindCrossTenantRequest      Kind = "cross_tenant_request"
	KindRateLimited             Kind = "rate_limited"
	KindPolicyEngineUnavailable Kind = "policy_engine_unavailable"
	KindStorageUnavailable      Kind = "storage_unavailable"
	KindTenancyViolation        Kind = "tenancy_violation"
	KindNotFound                Kind = "not_found"
	KindConflict                Kind = "conflict"
	KindInternal                Kind = "internal"
)

// kindStatus maps each kind to its HTTP status.
var kindStatus = map[Kind]int{
	KindInvalidRequest:          http.StatusBadRequest,
	KindCredentialAbsent:        http.StatusUnauthorized,
	KindJwtSignatureInvalid:     http.StatusUnauthorized,
	KindJwtExpired:              http.StatusUnauthorized,
	KindJwtAudienceMismatch:     http.StatusUnauthorized,
	KindJwtIssuerMismatch:       http.StatusUnauthorized,
	KindJwtMissingClaim:         http.StatusUnauthorized,
	KindApiKeyUnknown:           http.StatusUnauthorized,
	KindCrossTenantRequest:      http.StatusForbidden,
	KindRateLimited:             http.StatusTooManyRequests,
	KindPolicyEngineUnavailable: http.StatusServiceUnavailable,
	KindStorageUnavailable:      http.StatusServiceUnavailable,
	KindTenancyViolation:        http.StatusInternalServerError,
	KindNotFound:                http.StatusNotFound,
	KindConflict:                http.StatusConflict,
	KindInternal:                http.StatusInternalServerError,
}

// kindTitle maps each kind to a short human-readable title.
var kindTitle = map[Kind]string{
	KindInvalidRequest:          "Invalid request",
	KindCredentialAbsent:        "Missing credentials",
	KindJwtSignatureInvalid:     "Invalid token signature",
	KindJwtExpired:              "Token expired",
	KindJwtAudienceMismatch:     "Token audience mismatch",
	KindJwtIssuerMismatch:       "Token issuer mismatch",
	KindJwtMissingClaim:         "Token missing required claim",
	KindApiKeyUnknown:           "Unknown API key",
	KindCrossTenantRequest:      "Cross-tenant request rejected",
	KindRateLimited:             "Rate limit exceeded",
	KindPolicyEngineUnavailable: "Policy engine unavailable",
	KindStorageUnavailable:      "Storage unavailable",
	KindTenancyViolation:        "Internal error",
	KindNotFound:                "Not found",
	KindConflict:                "Conflict",
	KindInternal:                "Internal error",
}

// KindHTTPStatus returns the HTTP status for a kind, defaulting to 500.
func KindHTTPStatus(k Kind) int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Problem is an RFC-7807-style problem document. Every non-2xx response
// body on the API surface has this shape.
type Problem struct {
	Type              string `json:"type"`
	Title             string `json:"title"`
	Status            int    `json:"status"`
	Detail            string `json:"detail,omitempty"`
	RetryAfterSeconds *int64 `json:"retryAfterSeconds,omitempty"`
}

// NewProblem builds a problem document for the given kind.
func NewProblem(kind Kind, detail string) *Problem {
	return &Problem{
		Type:   "urn:authzd:error:" + string(kind),
		Title:  kindTitle[kind],
		Status: KindHTTPStatus(kind),
		Detail: detail,
	}
}

// APIError carries a kind and caller-facing detail across component
// boundaries until the HTTP layer renders it.
type APIError struct {
	Kind   Kind
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind)
}

// NewAPIError creates a new APIError with the given kind and detail.
func NewAPIError(kind Kind, detail string) *APIError {
	return &APIError{Kind: kind, Detail: detail}
}

// NewAPIErrorResponse writes a problem document for the given kind.
// TenancyViolation deliberately leaks no detail to the caller.
func NewAPIErrorResponse(c echo.Context, kind Kind, detail string) error {
	if kind == KindTenancyViolation {
		detail = ""
	}
	p := NewProblem(kind, detail)
	return c.JSON(p.Status, p)
}

// NewRateLimitedResponse writes a 429 problem document with the
// Retry-After headers required by the rate limiter contract.
func NewRateLimitedResponse(c echo.Context, retryAfterSeconds int64) error {
	p := NewProblem(KindRateLimited, "request rate exceeds the configured limit")
	p.RetryAfterSeconds = &retryAfterSeconds
	secs := cast.ToString(retryAfterSeconds)
	c.Response().Header().Set("Retry-After", secs)
	c.Response().Header().Set("X-Rate-Limit-Retry-After-Seconds", secs)
	return c.JSON(p.Status, p)
}

// MaskKey masks an API key for logging, keeping only the last 4 characters.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "…" + key[len(key)-4:]
}
