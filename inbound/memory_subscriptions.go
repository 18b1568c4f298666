package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/google/uuid"
)

// MemorySubscriptionStore keeps subscription state in process with the same
// optimistic concurrency contract as the SQL store. Meant for tests and
// single-process setups.
type MemorySubscriptionStore struct {
	mu   sync.Mutex
	subs map[string]*core.Subscription

	Now func() time.Time
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{
		subs: map[string]*core.Subscription{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemorySubscriptionStore) Get(_ context.Context, id string) (core.Subscription, error) {
	if s == nil {
		return core.Subscription{}, fmt.Errorf("inbound: subscription store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[strings.TrimSpace(id)]
	if !ok {
		return core.Subscription{}, fmt.Errorf("inbound: subscription %q: %w", id, core.ErrSubscriptionNotFound)
	}
	return *sub, nil
}

func (s *MemorySubscriptionStore) Create(_ context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil {
		return core.Subscription{}, fmt.Errorf("inbound: subscription store is nil")
	}
	scopeID := strings.TrimSpace(in.ScopeID)
	if scopeID == "" {
		return core.Subscription{}, fmt.Errorf("inbound: scope id is required")
	}
	state := in.PlanState
	if state == "" {
		state = core.PlanStateFree
	}
	if !state.Valid() {
		return core.Subscription{}, fmt.Errorf("inbound: unknown plan state %q", state)
	}

	now := s.now()
	sub := core.Subscription{
		ID:        uuid.NewString(),
		ScopeID:   scopeID,
		PlanState: state,
		PlanCode:  strings.TrimSpace(in.PlanCode),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := sub
	s.subs[sub.ID] = &stored
	return sub, nil
}

func (s *MemorySubscriptionStore) UpdateState(_ context.Context, id string, expectedVersion int, state core.PlanState, planCode string) (core.Subscription, error) {
	if s == nil {
		return core.Subscription{}, fmt.Errorf("inbound: subscription store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[strings.TrimSpace(id)]
	if !ok {
		return core.Subscription{}, fmt.Errorf("inbound: subscription %q: %w", id, core.ErrSubscriptionNotFound)
	}
	if sub.Version != expectedVersion {
		return core.Subscription{}, fmt.Errorf("inbound: subscription %q at version %d, expected %d: %w",
			id, sub.Version, expectedVersion, core.ErrSubscriptionVersionConflict)
	}

	next := *sub
	if err := next.TransitionTo(state, s.now()); err != nil {
		return core.Subscription{}, err
	}
	if code := strings.TrimSpace(planCode); code != "" {
		next.PlanCode = code
	}
	next.Version++

	s.subs[sub.ID] = &next
	return next, nil
}

func (s *MemorySubscriptionStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// MemoryStores bundles the in-memory stores behind the provider contract so
// the facade can run without a database.
type MemoryStores struct {
	Events        *MemoryIdempotencyStore
	Subscriptions *MemorySubscriptionStore
	AuthFailures  *MemoryAuthFailureSink
}

func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		Events:        NewMemoryIdempotencyStore(),
		Subscriptions: NewMemorySubscriptionStore(),
		AuthFailures:  NewMemoryAuthFailureSink(),
	}
}

func (m *MemoryStores) IdempotencyStore() core.IdempotencyStore {
	if m == nil {
		return nil
	}
	return m.Events
}

func (m *MemoryStores) SubscriptionStore() core.SubscriptionStore {
	if m == nil {
		return nil
	}
	return m.Subscriptions
}

func (m *MemoryStores) AuthFailureSink() core.AuthFailureSink {
	if m == nil {
		return nil
	}
	return m.AuthFailures
}

var (
	_ core.SubscriptionStore = (*MemorySubscriptionStore)(nil)
	_ core.StoreProvider     = (*MemoryStores)(nil)
)
