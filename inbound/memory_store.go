package inbound

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-ingest/core"
)

const defaultMemoryClaimLease = 30 * time.Second

// MemoryIdempotencyStore keeps the claim ledger in process memory. It backs
// tests and single-node deployments; the SQL store is the durable variant.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*core.IdempotencyRecord
	Now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		records: map[string]*core.IdempotencyRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, in core.ClaimInput) (core.ClaimResult, error) {
	if s == nil {
		return core.ClaimResult{}, fmt.Errorf("inbound: memory store is not configured")
	}
	if err := in.Identity.Validate(); err != nil {
		return core.ClaimResult{}, err
	}
	lease := in.Lease
	if lease <= 0 {
		lease = defaultMemoryClaimLease
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := in.Identity.Key()
	if existing, ok := s.records[key]; ok {
		switch existing.Status {
		case core.RecordStatusApplied:
			return core.ClaimResult{Outcome: core.ClaimAlreadyApplied, Record: cloneRecord(existing)}, nil
		case core.RecordStatusFailed:
			return core.ClaimResult{Outcome: core.ClaimAlreadyFailed, Record: cloneRecord(existing)}, nil
		default:
			return core.ClaimResult{Outcome: core.ClaimAlreadyClaimed, Record: cloneRecord(existing)}, nil
		}
	}

	record := &core.IdempotencyRecord{
		Identity:     in.Identity,
		Status:       core.RecordStatusClaimed,
		EventType:    in.EventType,
		Payload:      append([]byte(nil), in.Payload...),
		AttemptCount: 1,
		ReceivedAt:   now,
		UpdatedAt:    now,
		LeaseUntil:   now.Add(lease),
	}
	s.records[key] = record
	return core.ClaimResult{Outcome: core.ClaimFresh, Record: cloneRecord(record)}, nil
}

func (s *MemoryIdempotencyStore) Commit(_ context.Context, identity core.EventIdentity, status core.RecordStatus, summary map[string]any, cause error) (core.IdempotencyRecord, error) {
	if s == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: memory store is not configured")
	}
	if !status.Terminal() {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: commit status %q is not terminal", status)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identity.Key()]
	if !ok {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: commit %s: %w", identity.Key(), core.ErrRecordNotFound)
	}
	if record.Status != core.RecordStatusClaimed {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: commit %s in status %s: %w",
			identity.Key(), record.Status, core.ErrRecordNotClaimed)
	}
	if err := record.TransitionTo(status, now); err != nil {
		return core.IdempotencyRecord{}, err
	}
	record.ResultSummary = cloneSummary(summary)
	if cause != nil {
		record.LastError = cause.Error()
	}
	record.LeaseUntil = time.Time{}
	return cloneRecord(record), nil
}

func (s *MemoryIdempotencyStore) RecordAttempt(_ context.Context, identity core.EventIdentity, cause error, nextAttemptAt time.Time) (core.IdempotencyRecord, error) {
	if s == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: memory store is not configured")
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identity.Key()]
	if !ok {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: record attempt %s: %w", identity.Key(), core.ErrRecordNotFound)
	}
	if record.Status != core.RecordStatusClaimed {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: record attempt %s in status %s: %w",
			identity.Key(), record.Status, core.ErrRecordNotClaimed)
	}
	record.AttemptCount++
	if cause != nil {
		record.LastError = cause.Error()
	}
	record.LeaseUntil = nextAttemptAt
	record.UpdatedAt = now
	return cloneRecord(record), nil
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, identity core.EventIdentity) (core.IdempotencyRecord, error) {
	if s == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identity.Key()]
	if !ok {
		return core.IdempotencyRecord{}, fmt.Errorf("inbound: get %s: %w", identity.Key(), core.ErrRecordNotFound)
	}
	return cloneRecord(record), nil
}

func (s *MemoryIdempotencyStore) ClaimRedriveBatch(_ context.Context, limit int, cutoff time.Time, lease time.Duration) ([]core.IdempotencyRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("inbound: memory store is not configured")
	}
	if limit <= 0 {
		return nil, nil
	}
	if lease <= 0 {
		lease = defaultMemoryClaimLease
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*core.IdempotencyRecord
	for _, record := range s.records {
		if record.Status == core.RecordStatusClaimed && record.LeaseUntil.Before(cutoff) {
			eligible = append(eligible, record)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].LeaseUntil.Before(eligible[j].LeaseUntil)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]core.IdempotencyRecord, 0, len(eligible))
	for _, record := range eligible {
		record.LeaseUntil = now.Add(lease)
		record.UpdatedAt = now
		out = append(out, cloneRecord(record))
	}
	return out, nil
}

func (s *MemoryIdempotencyStore) ListFailed(_ context.Context, limit int) ([]core.IdempotencyRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("inbound: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []core.IdempotencyRecord
	for _, record := range s.records {
		if record.Status == core.RecordStatusFailed {
			failed = append(failed, cloneRecord(record))
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].UpdatedAt.After(failed[j].UpdatedAt)
	})
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (s *MemoryIdempotencyStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func cloneRecord(record *core.IdempotencyRecord) core.IdempotencyRecord {
	if record == nil {
		return core.IdempotencyRecord{}
	}
	out := *record
	out.Payload = append([]byte(nil), record.Payload...)
	out.ResultSummary = cloneSummary(record.ResultSummary)
	if record.AppliedAt != nil {
		applied := *record.AppliedAt
		out.AppliedAt = &applied
	}
	return out
}

var _ core.IdempotencyStore = (*MemoryIdempotencyStore)(nil)
