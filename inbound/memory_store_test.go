package inbound

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-ingest/core"
)

func TestMemoryStoreClaimOutcomes(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	eventIdentity := core.EventIdentity{Provider: "payproc", EventID: "evt_1"}
	input := core.ClaimInput{Identity: eventIdentity, EventType: "charge.succeeded", Payload: []byte(`{}`)}

	first, err := store.Claim(context.Background(), input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.Outcome != core.ClaimFresh || first.Record.AttemptCount != 1 {
		t.Fatalf("unexpected fresh claim %+v", first)
	}

	second, err := store.Claim(context.Background(), input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second.Outcome != core.ClaimAlreadyClaimed {
		t.Fatalf("expected already_claimed, got %s", second.Outcome)
	}

	if _, err := store.Commit(context.Background(), eventIdentity, core.RecordStatusApplied, map[string]any{"ok": true}, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	third, err := store.Claim(context.Background(), input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if third.Outcome != core.ClaimAlreadyApplied || third.Record.ResultSummary["ok"] != true {
		t.Fatalf("expected already_applied with summary, got %+v", third)
	}
}

func TestMemoryStoreCommitRequiresClaimedRecord(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	eventIdentity := core.EventIdentity{Provider: "payproc", EventID: "evt_1"}

	if _, err := store.Commit(context.Background(), eventIdentity, core.RecordStatusApplied, nil, nil); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := store.Claim(context.Background(), core.ClaimInput{Identity: eventIdentity, EventType: "x", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.Commit(context.Background(), eventIdentity, core.RecordStatusApplied, nil, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := store.Commit(context.Background(), eventIdentity, core.RecordStatusFailed, nil, fmt.Errorf("boom")); !errors.Is(err, core.ErrRecordNotClaimed) {
		t.Fatalf("expected not claimed, got %v", err)
	}
	if _, err := store.Commit(context.Background(), eventIdentity, core.RecordStatusClaimed, nil, nil); err == nil {
		t.Fatal("expected non-terminal commit to fail")
	}
}

func TestMemoryStoreRecordAttempt(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	eventIdentity := core.EventIdentity{Provider: "payproc", EventID: "evt_1"}
	if _, err := store.Claim(context.Background(), core.ClaimInput{Identity: eventIdentity, EventType: "x", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	next := time.Now().UTC().Add(4 * time.Second)
	record, err := store.RecordAttempt(context.Background(), eventIdentity, fmt.Errorf("timeout"), next)
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if record.AttemptCount != 2 || record.LastError != "timeout" || !record.LeaseUntil.Equal(next) {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestMemoryStoreClaimRedriveBatchHonorsLimitAndOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	store := NewMemoryIdempotencyStore()
	store.Now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		eventIdentity := core.EventIdentity{Provider: "payproc", EventID: fmt.Sprintf("evt_%d", i)}
		if _, err := store.Claim(context.Background(), core.ClaimInput{Identity: eventIdentity, EventType: "x", Payload: []byte(`{}`), Lease: time.Duration(i+1) * time.Second}); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	clock = base.Add(time.Minute)
	batch, err := store.ClaimRedriveBatch(context.Background(), 2, clock, 30*time.Second)
	if err != nil {
		t.Fatalf("claim redrive batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch))
	}
	// Oldest lease first.
	if batch[0].Identity.EventID != "evt_0" || batch[1].Identity.EventID != "evt_1" {
		t.Fatalf("unexpected order %s, %s", batch[0].Identity.EventID, batch[1].Identity.EventID)
	}
	for _, record := range batch {
		if !record.LeaseUntil.Equal(clock.Add(30 * time.Second)) {
			t.Fatalf("expected re-leased record, got %+v", record)
		}
	}
}

func TestMemoryStoreListFailed(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	for i := 0; i < 3; i++ {
		eventIdentity := core.EventIdentity{Provider: "payproc", EventID: fmt.Sprintf("evt_%d", i)}
		if _, err := store.Claim(context.Background(), core.ClaimInput{Identity: eventIdentity, EventType: "x", Payload: []byte(`{}`)}); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if i < 2 {
			if _, err := store.Commit(context.Background(), eventIdentity, core.RecordStatusFailed, nil, fmt.Errorf("bad")); err != nil {
				t.Fatalf("commit: %v", err)
			}
		}
	}

	failed, err := store.ListFailed(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed records, got %d", len(failed))
	}
	for _, record := range failed {
		if record.Status != core.RecordStatusFailed {
			t.Fatalf("unexpected record %+v", record)
		}
	}
}
