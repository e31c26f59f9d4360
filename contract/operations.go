package contract

import (
	"context"
	"errors"
	"time"

	"github.com/ratewatch/ratewatch/auth"
	"github.com/ratewatch/ratewatch/health"
	"github.com/ratewatch/ratewatch/kv"
	"github.com/ratewatch/ratewatch/privacy"
	"github.com/ratewatch/ratewatch/ratelimit"
)

// serviceVersion is reported on the liveness response. It is set at
// build time by whatever embeds this core; the core itself has no
// build metadata of its own.
var serviceVersion = "dev"

// SetVersion overrides the version string reported by Liveness. Call
// once during startup.
func SetVersion(v string) { serviceVersion = v }

// VerifyCredential authenticates authorizationHeader against expected
// digest and returns an ErrUnauthorized on any failure — missing
// header, malformed scheme, or a credential that fails Verifier.Verify
// all collapse into the same response shape, since none of these
// distinctions are safe to expose to a caller.
func VerifyCredential(ctx context.Context, verifier *auth.Verifier, authorizationHeader, expectedDigest string) *APIError {
	credential, ok := auth.HeaderCredential(authorizationHeader)
	if !ok {
		return ErrUnauthorized
	}
	if err := verifier.Verify(ctx, credential, expectedDigest); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// CheckDecision validates req, forwards it to engine, and maps the
// result into DecisionResponse. A validation failure never reaches
// engine.
func CheckDecision(ctx context.Context, engine *ratelimit.Engine, req DecisionRequest) (DecisionResponse, *APIError) {
	if apiErr := Validate(req); apiErr != nil {
		return DecisionResponse{}, apiErr
	}

	decision, err := engine.Check(ctx, ratelimit.Policy{
		Fingerprint:   req.Key,
		Limit:         req.Limit,
		WindowSeconds: req.Window,
		Cost:          req.Cost,
	})
	if err != nil {
		return DecisionResponse{}, mapEngineError(err)
	}

	return DecisionResponse{
		Allowed:    decision.Allowed,
		Remaining:  decision.Remaining,
		ResetIn:    decision.ResetInSeconds,
		RetryAfter: decision.RetryAfterSeconds,
	}, nil
}

func mapEngineError(err error) *APIError {
	switch {
	case errors.Is(err, kv.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, ratelimit.ErrEngineUnavailable):
		return ErrServiceUnavailable
	default:
		return ErrInternal.With(sanitizeMessage(err.Error()))
	}
}

// DeleteSubject validates req, forwards it to manager, and maps the
// result into PrivacyDeletionResponse. A sweep that hit a batch error
// after removing some keys is reported as success=false with the
// partial count; the caller can retry the idempotent deletion to
// finish the job. A sweep that failed without removing any key
// returns ErrServiceUnavailable instead.
func DeleteSubject(ctx context.Context, manager *privacy.Manager, req PrivacyDeletionRequest) (PrivacyDeletionResponse, *APIError) {
	if apiErr := Validate(req); apiErr != nil {
		return PrivacyDeletionResponse{}, apiErr
	}

	result, err := manager.DeleteSubject(ctx, req.UserID, req.Reason)
	if err != nil && result.DeletedKeys == 0 && len(result.Errors) > 0 {
		return PrivacyDeletionResponse{}, ErrServiceUnavailable
	}

	success := len(result.Errors) == 0
	message := "deletion completed for subject"
	if !success {
		message = "deletion partially completed for subject; retry to finish"
	}

	return PrivacyDeletionResponse{
		Success:     success,
		Message:     message,
		DeletedKeys: result.DeletedKeys,
	}, nil
}

// SummarizeSubject validates req, forwards it to manager, and maps the
// result into PrivacySummaryResponse.
func SummarizeSubject(ctx context.Context, manager *privacy.Manager, req PrivacySummaryRequest) (PrivacySummaryResponse, *APIError) {
	if apiErr := Validate(req); apiErr != nil {
		return PrivacySummaryResponse{}, apiErr
	}

	summary, err := manager.SummarizeSubject(ctx, req.UserID)
	if err != nil {
		return PrivacySummaryResponse{}, ErrServiceUnavailable
	}

	return PrivacySummaryResponse{
		UserID:            req.UserID,
		TotalKeys:         summary.TotalKeys,
		TotalRequests:     summary.TotalRequests,
		ActiveWindows:     summary.ActiveWindows,
		DataRetentionDays: summary.RetentionDays,
	}, nil
}

// Liveness reports the process liveness response. It never touches
// the KV.
func Liveness(now time.Time) LivenessResponse {
	result := health.Liveness()
	return LivenessResponse{
		Status:    string(result.Status),
		Timestamp: now,
		Version:   serviceVersion,
	}
}

// Readiness reports the readiness response, mapping every checked
// dependency into the wire shape.
func Readiness(ctx context.Context, prober *health.Prober, now time.Time) ReadinessResponse {
	result := prober.Readiness(ctx)

	deps := make(map[string]DependencyStatus, len(result.Dependencies))
	for _, d := range result.Dependencies {
		deps[d.Name] = DependencyStatus{
			Status:    string(d.Status),
			LatencyMs: d.Latency.Milliseconds(),
		}
	}

	return ReadinessResponse{
		Status:       string(result.Status),
		Timestamp:    now,
		Dependencies: deps,
	}
}
