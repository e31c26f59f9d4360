// Package chiadapter demonstrates wiring the contract package's
// operations into a chi router. It is example-only glue, not part of
// the core: the core publishes named component contracts and wire
// shapes, never a transport. A real deployment can copy this pattern
// or write an entirely different one (gRPC, a queue consumer) against
// the same contract functions.
package chiadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"

	"github.com/ratewatch/ratewatch/auth"
	"github.com/ratewatch/ratewatch/contract"
	"github.com/ratewatch/ratewatch/health"
	"github.com/ratewatch/ratewatch/privacy"
	"github.com/ratewatch/ratewatch/ratelimit"
)

// Deps bundles the component contracts a route needs. Every field
// must be set; NewRouter panics on a nil dependency the way a
// misconfigured wiring should fail loudly at startup rather than
// nil-panic mid-request.
type Deps struct {
	Engine           *ratelimit.Engine
	Verifier         *auth.Verifier
	PrivacyManager   *privacy.Manager
	Prober           *health.Prober
	CredentialDigest string
}

// NewRouter builds a chi router exposing the operations in the
// contract package. Every route except the two health endpoints
// requires a Bearer credential.
func NewRouter(deps Deps) chi.Router {
	if deps.Engine == nil || deps.Verifier == nil || deps.PrivacyManager == nil || deps.Prober == nil {
		panic("chiadapter: NewRouter called with a nil dependency")
	}

	r := chi.NewRouter()
	r.Use(loggingMiddleware)

	r.Get("/healthz", livenessHandler)
	r.Get("/readyz", readinessHandler(deps.Prober))

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(deps.Verifier, deps.CredentialDigest))
		r.Post("/v1/check", checkHandler(deps.Engine))
		r.Post("/v1/privacy/delete", deleteHandler(deps.PrivacyManager))
		r.Post("/v1/privacy/summary", summaryHandler(deps.PrivacyManager))
	})

	return r
}

// loggingMiddleware emits one structured log line per request, keyed
// on the route pattern rather than the raw path so cardinality stays
// bounded.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := canonlog.NewContext(r.Context())
		start := time.Now()
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			route := r.URL.Path
			if rctx := chi.RouteContext(ctx); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			canonlog.InfoAddMany(ctx, map[string]any{
				"method":      r.Method,
				"route":       route,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			canonlog.Flush(ctx)
		}()

		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func authMiddleware(verifier *auth.Verifier, expectedDigest string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiErr := contract.VerifyCredential(r.Context(), verifier, r.Header.Get("Authorization"), expectedDigest); apiErr != nil {
				writeError(w, apiErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkHandler(engine *ratelimit.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contract.DecisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, apiErr := contract.CheckDecision(r.Context(), engine, req)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteHandler(manager *privacy.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contract.PrivacyDeletionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, apiErr := contract.DeleteSubject(r.Context(), manager, req)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func summaryHandler(manager *privacy.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contract.PrivacySummaryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, apiErr := contract.SummarizeSubject(r.Context(), manager, req)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, contract.Liveness(time.Now()))
}

func readinessHandler(prober *health.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := contract.Readiness(r.Context(), prober, time.Now())
		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// maxRequestBodyBytes bounds every request body this router decodes.
// None of the three request shapes need more than a few hundred bytes;
// a much larger body is either a mistake or abuse, either way rejected
// before it reaches json.Decoder.
const maxRequestBodyBytes = 64 * 1024

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, contract.ErrInvalidRequest.With("request body too large"))
			return false
		}
		writeError(w, contract.ErrInvalidRequest.With(fmt.Sprintf("invalid JSON body: %v", err)))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, apiErr *contract.APIError) {
	writeJSON(w, apiErr.Status, struct {
		Error *contract.APIError `json:"error"`
	}{Error: apiErr})
}
