package contract_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nhalm/canonlog"

	"github.com/ratewatch/ratewatch/auth"
	"github.com/ratewatch/ratewatch/contract"
	"github.com/ratewatch/ratewatch/health"
	"github.com/ratewatch/ratewatch/kv"
	"github.com/ratewatch/ratewatch/privacy"
	"github.com/ratewatch/ratewatch/ratelimit"
)

func TestCheckDecision_Valid(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	engine := ratelimit.New(store)

	resp, apiErr := contract.CheckDecision(context.Background(), engine, contract.DecisionRequest{
		Key: "user:1", Limit: 5, Window: 60, Cost: 1,
	})
	if apiErr != nil {
		t.Fatalf("CheckDecision() error = %v", apiErr)
	}
	if !resp.Allowed || resp.Remaining != 4 {
		t.Errorf("resp = %+v, want Allowed=true Remaining=4", resp)
	}
}

func TestCheckDecision_InvalidRequest_NeverTouchesKV(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	engine := ratelimit.New(store)

	_, apiErr := contract.CheckDecision(context.Background(), engine, contract.DecisionRequest{
		Key: "user:1", Limit: 5, Window: 60, Cost: 10, // cost > limit
	})
	if apiErr == nil {
		t.Fatal("CheckDecision() with cost>limit: want error, got nil")
	}
	if apiErr.Type != contract.ErrInvalidRequest.Type {
		t.Errorf("apiErr.Type = %v, want %v", apiErr.Type, contract.ErrInvalidRequest.Type)
	}

	exists, _ := store.Exists(context.Background(), "rate_limit:user:1:0")
	if exists {
		t.Error("invalid request reached the KV store")
	}
}

func TestCheckDecision_MissingFields(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	engine := ratelimit.New(store)

	_, apiErr := contract.CheckDecision(context.Background(), engine, contract.DecisionRequest{})
	if apiErr == nil {
		t.Fatal("want validation error for empty request")
	}
	if len(apiErr.Errors) == 0 {
		t.Error("want field-level errors populated")
	}
}

func TestVerifyCredential(t *testing.T) {
	secret := []byte("service-signing-key")
	credential := "a-credential-that-is-long-enough-32b"
	digest := auth.Digest(secret, credential)
	verifier := auth.NewVerifier(secret)

	if apiErr := contract.VerifyCredential(canonlog.NewContext(context.Background()), verifier, "Bearer "+credential, digest); apiErr != nil {
		t.Fatalf("VerifyCredential() error = %v", apiErr)
	}

	if apiErr := contract.VerifyCredential(canonlog.NewContext(context.Background()), verifier, "Bearer wrong-credential-thats-long-enoughx", digest); apiErr == nil {
		t.Fatal("VerifyCredential() with wrong credential: want error")
	}

	if apiErr := contract.VerifyCredential(context.Background(), verifier, "", digest); apiErr == nil {
		t.Fatal("VerifyCredential() with missing header: want error")
	}
}

func TestDeleteSubject_And_Summarize(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	engine := ratelimit.New(store)
	manager := privacy.NewManager(store)
	ctx := canonlog.NewContext(context.Background())

	if _, apiErr := contract.CheckDecision(ctx, engine, contract.DecisionRequest{Key: "user:9", Limit: 5, Window: 60, Cost: 1}); apiErr != nil {
		t.Fatal(apiErr)
	}

	summary, apiErr := contract.SummarizeSubject(ctx, manager, contract.PrivacySummaryRequest{UserID: "user:9"})
	if apiErr != nil {
		t.Fatalf("SummarizeSubject() error = %v", apiErr)
	}
	if summary.TotalKeys != 1 || summary.DataRetentionDays != privacy.RetentionDays {
		t.Errorf("summary = %+v", summary)
	}

	del, apiErr := contract.DeleteSubject(ctx, manager, contract.PrivacyDeletionRequest{UserID: "user:9", Reason: "gdpr request"})
	if apiErr != nil {
		t.Fatalf("DeleteSubject() error = %v", apiErr)
	}
	if !del.Success || del.DeletedKeys != 1 {
		t.Errorf("del = %+v, want Success=true DeletedKeys=1", del)
	}
}

// flakyDelStore fails its Nth Del call, used to exercise the partial
// sweep path from the contract layer's perspective.
type flakyDelStore struct {
	kv.Store
	calls  int
	failOn int
}

func (s *flakyDelStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.calls++
	if s.calls == s.failOn {
		return 0, errors.New("boom")
	}
	return s.Store.Del(ctx, keys...)
}

func TestDeleteSubject_PartialSweepReportsFailure(t *testing.T) {
	base := kv.NewMemory()
	defer base.Close()
	ctx := canonlog.NewContext(context.Background())

	// 150 window buckets for one subject: the sweep's 100-key batching
	// splits this into two Del calls, so a failure on the second still
	// leaves a nonzero DeletedKeys from the first.
	for i := int64(0); i < 150; i++ {
		key := fmt.Sprintf("%suser:10:%d", ratelimit.BucketKeyPrefix, i)
		if _, err := base.IncrBy(ctx, key, 1); err != nil {
			t.Fatal(err)
		}
	}

	store := &flakyDelStore{Store: base, failOn: 2}
	manager := privacy.NewManager(store)

	del, apiErr := contract.DeleteSubject(ctx, manager, contract.PrivacyDeletionRequest{
		UserID: "user:10", Reason: "gdpr request",
	})
	if apiErr != nil {
		t.Fatalf("DeleteSubject() error = %v", apiErr)
	}
	if del.Success {
		t.Error("del.Success = true, want false on a sweep that hit a batch error")
	}
	if del.DeletedKeys != 100 {
		t.Errorf("del.DeletedKeys = %d, want 100 (first batch only)", del.DeletedKeys)
	}
}

func TestDeleteSubject_InvalidRequest(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	manager := privacy.NewManager(store)

	_, apiErr := contract.DeleteSubject(context.Background(), manager, contract.PrivacyDeletionRequest{})
	if apiErr == nil {
		t.Fatal("want validation error for empty request")
	}
}

func TestLiveness(t *testing.T) {
	contract.SetVersion("test-version")
	now := time.Unix(1_700_000_000, 0)
	resp := contract.Liveness(now)
	if resp.Status != "ok" || resp.Version != "test-version" || !resp.Timestamp.Equal(now) {
		t.Errorf("resp = %+v", resp)
	}
}

func TestReadiness(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	prober := health.NewProber(store)
	now := time.Unix(1_700_000_000, 0)

	resp := contract.Readiness(context.Background(), prober, now)
	if resp.Status != "ok" {
		t.Errorf("resp.Status = %v, want ok", resp.Status)
	}
	dep, ok := resp.Dependencies["redis"]
	if !ok {
		t.Fatal("Dependencies missing \"redis\" entry")
	}
	if dep.Status != "ok" {
		t.Errorf("dep.Status = %v, want ok", dep.Status)
	}
}
