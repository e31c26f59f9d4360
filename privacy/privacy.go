// Package privacy implements subject-scoped data lifecycle operations
// over the rate-limit KV namespace: deleting a subject's window
// buckets on request, and summarizing what is currently held.
//
// Every sweep walks the KV store's cursor-based scan, never a
// blocking full-keyspace listing, so a large namespace does not stall
// the store for other callers while a deletion is in flight.
package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/nhalm/canonlog"

	"github.com/ratewatch/ratewatch/kv"
	"github.com/ratewatch/ratewatch/ratelimit"
)

// RetentionDays is the documented retention window for rate-limit
// window buckets. It is informational only: actual expiry is enforced
// per-bucket by the TTL the decision engine arms on first write, not
// by this constant.
const RetentionDays = 30

// Manager performs subject-scoped deletion and summary operations
// against a KV store's rate-limit namespace.
type Manager struct {
	store kv.Store
}

// NewManager creates a Manager backed by store.
func NewManager(store kv.Store) *Manager {
	return &Manager{store: store}
}

// DeletionResult reports the outcome of DeleteSubject.
type DeletionResult struct {
	// DeletedKeys is the number of window buckets removed.
	DeletedKeys int64
	// Errors holds any per-batch deletion failures encountered while
	// sweeping. A non-empty Errors slice means the sweep is partial:
	// some matching keys may remain. The caller should retry.
	Errors []error
}

// subjectPattern returns the scan pattern covering every window bucket
// belonging to fingerprint, across all window indices.
func subjectPattern(fingerprint string) string {
	return fmt.Sprintf("%s%s:*", ratelimit.BucketKeyPrefix, fingerprint)
}

// DeleteSubject removes every window bucket belonging to fingerprint.
// It is idempotent: calling it again after a successful run, or on a
// fingerprint that never had any data, returns a zero DeletedKeys and
// no error.
//
// The sweep is not transactional. If the process is interrupted mid
// sweep, some keys may already be deleted and others not; a retry
// with the same fingerprint is safe and will finish the job, since
// deleting an already-absent key is a no-op.
//
// reason is the caller-supplied justification for the erasure and is
// carried into the audit record verbatim; it plays no role in the
// sweep itself.
func (m *Manager) DeleteSubject(ctx context.Context, fingerprint, reason string) (DeletionResult, error) {
	it := m.store.ScanMatch(ctx, subjectPattern(fingerprint))

	var result DeletionResult
	var batch []string
	const batchSize = 100

	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, err := m.store.Del(ctx, batch...)
		if err != nil {
			result.Errors = append(result.Errors, err)
		} else {
			result.DeletedKeys += n
		}
		batch = batch[:0]
	}

	for it.Next(ctx) {
		batch = append(batch, it.Key())
		if len(batch) >= batchSize {
			flush()
		}
	}
	flush()

	if err := it.Err(); err != nil {
		result.Errors = append(result.Errors, err)
	}

	outcome := "success"
	if len(result.Errors) > 0 {
		outcome = "partial"
	}
	canonlog.InfoAddMany(ctx, map[string]any{
		"privacy_subject_hash": hashSubject(fingerprint),
		"privacy_reason":       reason,
		"privacy_deleted_keys": result.DeletedKeys,
		"privacy_outcome":      outcome,
	})

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("privacy: partial deletion for subject, %d batch error(s)", len(result.Errors))
	}
	return result, nil
}

// Summary reports what the store currently holds for a subject,
// without modifying anything.
type Summary struct {
	TotalKeys     int64
	TotalRequests int64
	ActiveWindows int64
	RetentionDays int64
}

// SummarizeSubject reads every window bucket belonging to fingerprint
// and reports aggregate usage. It never deletes or expires data.
func (m *Manager) SummarizeSubject(ctx context.Context, fingerprint string) (Summary, error) {
	it := m.store.ScanMatch(ctx, subjectPattern(fingerprint))

	summary := Summary{RetentionDays: RetentionDays}
	for it.Next(ctx) {
		summary.TotalKeys++
		// A zero-delta IncrBy is a read of the counter's current value
		// without mutating it; kv.Store exposes no separate Get because
		// the decision engine never needs one.
		count, err := m.store.IncrBy(ctx, it.Key(), 0)
		if err != nil {
			continue
		}
		summary.TotalRequests += count

		// A window only counts as active if it still carries a TTL: a
		// bucket whose best-effort EXPIRE never landed (kv.NoTTL) has no
		// natural expiry and should not be reported as a live window.
		ttl, err := m.store.TTL(ctx, it.Key())
		if err == nil && ttl > 0 {
			summary.ActiveWindows++
		}
	}
	if err := it.Err(); err != nil {
		return Summary{}, fmt.Errorf("privacy: summarize scan failed: %w", err)
	}

	canonlog.InfoAddMany(ctx, map[string]any{
		"privacy_subject_hash": hashSubject(fingerprint),
		"privacy_total_keys":   summary.TotalKeys,
	})

	return summary, nil
}

// hashSubject derives a stable, non-reversible identifier for audit
// logging so raw subject fingerprints (which may be IP addresses,
// account IDs, or other quasi-identifiers) never appear in log output.
func hashSubject(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])[:16]
}
