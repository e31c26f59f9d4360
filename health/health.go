// Package health reports liveness and readiness for the rate-limit
// service: whether the process itself is up, and whether its KV
// dependency is reachable within its SLO latency budget.
package health

import (
	"context"
	"time"

	"github.com/ratewatch/ratewatch/kv"
)

// Tier classifies the latency budget a dependency check is held to.
// The KV ping is held to Critical by default: a rate-limit
// decision is on the hot path of every request the caller makes, so
// its store had better answer fast.
type Tier string

const (
	Critical Tier = "critical"
	HighFast Tier = "high_fast"
	HighSlow Tier = "high_slow"
	Low      Tier = "low"
)

var tierTargets = map[Tier]time.Duration{
	Critical: 50 * time.Millisecond,
	HighFast: 100 * time.Millisecond,
	HighSlow: 1000 * time.Millisecond,
	Low:      5000 * time.Millisecond,
}

// Status is the coarse health classification reported to a caller.
// There are only two wire-visible states: a dependency that is
// unreachable is reported the same as one that is reachable but slow,
// since neither is fatal to the process itself and a caller consuming
// this endpoint only needs to know "trust it" or "don't lean on it".
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// LivenessResult reports whether the process itself is running. It
// never touches the KV store: a liveness probe that depends on an
// external dependency defeats its own purpose by giving an
// orchestrator a reason to restart a process that isn't the problem.
type LivenessResult struct {
	Status Status
}

// Liveness always reports ok: reaching this call at all is proof the
// process is alive.
func Liveness() LivenessResult {
	return LivenessResult{Status: StatusOK}
}

// DependencyResult reports one dependency's reachability and whether
// it answered inside its SLO tier's latency budget.
type DependencyResult struct {
	Name    string
	Status  Status
	Latency time.Duration
	Tier    Tier
	Err     error
}

// ReadinessResult aggregates dependency checks into one overall
// status: ok if every dependency answered within budget, degraded if
// any dependency was slow or did not answer at all.
type ReadinessResult struct {
	Status       Status
	Dependencies []DependencyResult
}

// Prober issues readiness checks against a KV store.
type Prober struct {
	store kv.Store
	tier  Tier
}

// Option configures a Prober.
type Option func(*Prober)

// WithTier overrides the SLO tier the KV ping is held to. Defaults to
// Critical.
func WithTier(tier Tier) Option {
	return func(p *Prober) { p.tier = tier }
}

// NewProber creates a Prober backed by store.
func NewProber(store kv.Store, opts ...Option) *Prober {
	p := &Prober{store: store, tier: Critical}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Readiness pings the KV store and classifies the result against the
// prober's SLO tier. A ping that errors is reported degraded, the same
// as a ping that succeeds but exceeds the tier's target latency: this
// endpoint's vocabulary has no state below degraded, and either way a
// caller relying on it should not expect fast, reliable decisions
// right now.
func (p *Prober) Readiness(ctx context.Context) ReadinessResult {
	dep := DependencyResult{Name: "redis", Tier: p.tier}

	latency, err := p.store.Ping(ctx)
	dep.Latency = latency
	if err != nil {
		dep.Status = StatusDegraded
		dep.Err = err
		return ReadinessResult{Status: StatusDegraded, Dependencies: []DependencyResult{dep}}
	}

	target := tierTargets[p.tier]
	if latency > target {
		dep.Status = StatusDegraded
		return ReadinessResult{Status: StatusDegraded, Dependencies: []DependencyResult{dep}}
	}

	dep.Status = StatusOK
	return ReadinessResult{Status: StatusOK, Dependencies: []DependencyResult{dep}}
}
