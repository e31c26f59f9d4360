// Package ratelimit implements the sliding-discrete-window rate-limit
// decision engine: given a Policy, it consults the KV store's atomic
// increment and TTL primitives and reports whether the request is
// allowed, how much quota remains, and when the current window resets.
//
// The engine is stateless. All state lives in the KV store; multiple
// Engine instances behind a load balancer converge on the same
// decisions because they share the same store.
//
// The window is a discrete bucket keyed on floor(now/window), not a
// true sliding log: a caller can observe up to 2*limit accepted across
// a window boundary. This is documented, implemented behavior, not a
// defect — see Engine.Check.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhalm/canonlog"

	"github.com/ratewatch/ratewatch/internal/clock"
	"github.com/ratewatch/ratewatch/kv"
)

// Policy is the immutable input to one decision. It is never
// persisted; only the Window Bucket it produces in the KV store is.
type Policy struct {
	// Fingerprint is an opaque caller-chosen identifier that namespaces
	// the quota (e.g. "user:42", "ip:1.2.3.4"). Non-empty, <=256 bytes
	// of UTF-8.
	Fingerprint string
	// Limit is the maximum cost permitted per window. Must be >= 1.
	Limit int64
	// WindowSeconds is the window length. Must be >= 1.
	WindowSeconds int64
	// Cost is the quantity this request consumes. Must satisfy
	// 1 <= Cost <= Limit; the engine assumes this has already been
	// checked (see the contract package for the boundary that enforces
	// it before reaching here).
	Cost int64
}

// Decision is the transient result of one Check call.
type Decision struct {
	Allowed bool
	// Remaining is non-negative and never exceeds Limit.
	Remaining int64
	// ResetInSeconds is the number of seconds until the current
	// window's bucket expires, derived from the KV store's TTL, never
	// from local clock arithmetic.
	ResetInSeconds int64
	// RetryAfterSeconds is set iff Allowed is false, and then equals
	// ResetInSeconds.
	RetryAfterSeconds *int64
}

// ErrEngineUnavailable wraps a KV failure surfaced from Check. It never
// indicates the decision itself; the caller must fail closed and
// decide independently whether to fail-open.
var ErrEngineUnavailable = errors.New("ratelimit: engine unavailable")

// Engine computes rate-limit decisions against a KV store. It holds no
// mutable state beyond its Store handle; correctness under concurrency
// comes entirely from the Store's atomic IncrBy.
type Engine struct {
	store kv.Store
	clock clock.Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Intended for tests
// that need to pin window boundaries; production callers should leave
// this at its default (clock.Real).
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine backed by store.
func New(store kv.Store, opts ...Option) *Engine {
	e := &Engine{store: store, clock: clock.Real{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check implements the sliding-discrete-window algorithm:
//
//  1. Compute the current window index and bucket key.
//  2. Atomically increment the bucket by Policy.Cost.
//  3. If this was the bucket's first write in the window, arm its TTL
//     to the window length (best-effort: a failure here does not
//     invalidate the decision, only degrades the reset_in fallback).
//  4. Read the bucket's TTL to derive reset_in, falling back to the
//     full window length if the TTL observation came back negative.
//  5. Allow iff the post-increment value does not exceed the limit;
//     the boundary is inclusive (new_value == limit is allowed).
//
// The increment happens before the allow/deny check is known — this is
// the only ordering that keeps the check atomic on a commodity KV
// primitive. A denied request therefore still "charges" the bucket;
// the window's natural expiry is what restores quota. There is no
// refund on denial. Callers must not assume otherwise.
func (e *Engine) Check(ctx context.Context, p Policy) (Decision, error) {
	now := e.clock.Now().Unix()
	windowIndex := now / p.WindowSeconds
	bucketKey := fmt.Sprintf("%s%s:%d", BucketKeyPrefix, p.Fingerprint, windowIndex)

	newValue, err := e.store.IncrBy(ctx, bucketKey, p.Cost)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}

	if newValue == p.Cost {
		if _, expErr := e.store.Expire(ctx, bucketKey, time.Duration(p.WindowSeconds)*time.Second); expErr != nil {
			canonlog.InfoAddMany(ctx, map[string]any{
				"ratelimit_expire_failed": true,
				"ratelimit_bucket":        bucketKey,
				"ratelimit_expire_error":  expErr.Error(),
			})
		}
	}

	resetIn := p.WindowSeconds
	ttl, err := e.store.TTL(ctx, bucketKey)
	if err == nil && ttl >= 0 {
		resetIn = int64(ttl.Seconds())
	} else if err != nil {
		canonlog.InfoAddMany(ctx, map[string]any{
			"ratelimit_ttl_lookup_failed": true,
			"ratelimit_bucket":            bucketKey,
			"ratelimit_ttl_error":         err.Error(),
		})
	} else if ttl == kv.NoTTL {
		// The bucket exists without a TTL: the best-effort expire above
		// either failed or lost a race. Re-arm it so the next reader
		// does not repeat this fallback indefinitely, and report the
		// full window as the fallback reset for this call.
		if _, expErr := e.store.Expire(ctx, bucketKey, time.Duration(p.WindowSeconds)*time.Second); expErr != nil {
			canonlog.InfoAddMany(ctx, map[string]any{
				"ratelimit_rearm_failed": true,
				"ratelimit_bucket":       bucketKey,
				"ratelimit_rearm_error":  expErr.Error(),
			})
		}
	}

	if newValue <= p.Limit {
		return Decision{
			Allowed:        true,
			Remaining:      p.Limit - newValue,
			ResetInSeconds: resetIn,
		}, nil
	}

	retryAfter := resetIn
	return Decision{
		Allowed:           false,
		Remaining:         0,
		ResetInSeconds:    resetIn,
		RetryAfterSeconds: &retryAfter,
	}, nil
}

// BucketKeyPrefix is the namespace prefix every Window Bucket key uses.
// The privacy manager sweeps this same namespace.
const BucketKeyPrefix = "rate_limit:"
