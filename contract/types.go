package contract

import "time"

// DecisionRequest is the wire shape for a rate-limit check.
type DecisionRequest struct {
	Key    string `json:"key" validate:"required,max=256"`
	Limit  int64  `json:"limit" validate:"required,min=1"`
	Window int64  `json:"window" validate:"required,min=1"`
	Cost   int64  `json:"cost" validate:"required,min=1,ltefield=Limit"`
}

// DecisionResponse is the wire shape for a rate-limit check's result.
type DecisionResponse struct {
	Allowed    bool   `json:"allowed"`
	Remaining  int64  `json:"remaining"`
	ResetIn    int64  `json:"reset_in"`
	RetryAfter *int64 `json:"retry_after"`
}

// PrivacyDeletionRequest is the wire shape for a subject erasure
// request.
type PrivacyDeletionRequest struct {
	UserID string `json:"user_id" validate:"required,max=256"`
	Reason string `json:"reason" validate:"required"`
}

// PrivacyDeletionResponse is the wire shape for a subject erasure
// result.
type PrivacyDeletionResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	DeletedKeys int64  `json:"deleted_keys"`
}

// PrivacySummaryRequest is the wire shape for a subject usage summary
// request.
type PrivacySummaryRequest struct {
	UserID string `json:"user_id" validate:"required,max=256"`
}

// PrivacySummaryResponse is the wire shape for a subject usage
// summary.
type PrivacySummaryResponse struct {
	UserID            string `json:"user_id"`
	TotalKeys         int64  `json:"total_keys"`
	TotalRequests     int64  `json:"total_requests"`
	ActiveWindows     int64  `json:"active_windows"`
	DataRetentionDays int64  `json:"data_retention_days"`
}

// LivenessResponse is the wire shape for the liveness probe.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// DependencyStatus is the wire shape for one dependency's readiness.
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

// ReadinessResponse is the wire shape for the readiness probe.
type ReadinessResponse struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}
