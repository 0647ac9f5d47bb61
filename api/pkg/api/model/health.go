package model

// APIHealthCheck captures API server health information.
type APIHealthCheck struct {
	// IsHealthy provides a flag to accompany an error status code
	IsHealthy bool `json:"is_healthy"`
	// Error contains an error message in case of health issues
	Error *string `json:"error"`
	// Components reports per-dependency status (storage, cache, policy engine).
	Components map[string]string `json:"components,omitempty"`
}

// NewAPIHealthCheck creates and returns a new APIHealthCheck object
func NewAPIHealthCheck(isHealthy bool, errorMessage *string) *APIHealthCheck {
	return &APIHealthCheck{
		IsHealthy: isHealthy,
		Error:     errorMessage,
	}
}
