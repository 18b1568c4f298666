package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidEventIdentity            = errors.New("core: invalid event identity")
	ErrInvalidRecordStatusTransition   = errors.New("core: invalid idempotency record status transition")
	ErrInvalidPlanStateTransition      = errors.New("core: invalid subscription plan state transition")
	ErrRecordNotFound                  = errors.New("core: idempotency record not found")
	ErrRecordNotClaimed                = errors.New("core: idempotency record is not in claimed state")
	ErrSubscriptionNotFound            = errors.New("core: subscription not found")
	ErrSubscriptionVersionConflict     = errors.New("core: subscription version conflict")
	ErrUnknownEventType                = errors.New("core: unknown event type")
	ErrRetryBudgetExhausted            = errors.New("core: retry budget exhausted")
	// ErrEventRejected marks an event as permanently inapplicable to current
	// domain state. Rejected events commit as failed and are never retried.
	ErrEventRejected = errors.New("core: event rejected")
)

// EventIdentity is the provider-scoped identity of a business event. EventID
// is always provider-assigned and extracted from the payload, never generated
// locally.
type EventIdentity struct {
	Provider string
	EventID  string
}

func (id EventIdentity) Validate() error {
	if strings.TrimSpace(id.Provider) == "" {
		return fmt.Errorf("%w: empty provider", ErrInvalidEventIdentity)
	}
	if strings.TrimSpace(id.EventID) == "" {
		return fmt.Errorf("%w: empty event id", ErrInvalidEventIdentity)
	}
	return nil
}

func (id EventIdentity) Key() string {
	return strings.TrimSpace(id.Provider) + ":" + strings.TrimSpace(id.EventID)
}

type RecordStatus string

const (
	RecordStatusClaimed RecordStatus = "claimed"
	RecordStatusApplied RecordStatus = "applied"
	RecordStatusFailed  RecordStatus = "failed"
)

func (s RecordStatus) Terminal() bool {
	return s == RecordStatusApplied || s == RecordStatusFailed
}

// IdempotencyRecord is the durable per-identity processing state. It is owned
// exclusively by the IdempotencyStore; applied and failed are terminal.
type IdempotencyRecord struct {
	Identity      EventIdentity
	Status        RecordStatus
	EventType     string
	// Payload is the raw verified body captured at claim time, kept so a
	// redrive can re-dispatch without the original delivery.
	Payload       []byte
	AttemptCount  int
	ResultSummary map[string]any
	LastError     string
	ReceivedAt    time.Time
	AppliedAt     *time.Time
	UpdatedAt     time.Time
	// LeaseUntil bounds exclusive ownership of a claimed record. A claimed
	// record whose lease lapsed is eligible for redrive.
	LeaseUntil time.Time
}

func (r *IdempotencyRecord) TransitionTo(status RecordStatus, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == status {
		r.UpdatedAt = now
		return nil
	}
	if !recordTransitionAllowed(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRecordStatusTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = now
	if status == RecordStatusApplied {
		applied := now
		r.AppliedAt = &applied
	}
	return nil
}

func recordTransitionAllowed(from RecordStatus, to RecordStatus) bool {
	switch from {
	case RecordStatusClaimed:
		return to == RecordStatusApplied || to == RecordStatusFailed
	default:
		return false
	}
}

type PlanState string

const (
	PlanStateFree    PlanState = "free"
	PlanStatePaid    PlanState = "paid"
	PlanStatePastDue PlanState = "past_due"
)

func (s PlanState) Valid() bool {
	switch s {
	case PlanStateFree, PlanStatePaid, PlanStatePastDue:
		return true
	default:
		return false
	}
}

// Subscription is the domain state mutated as the effect of applying an
// event. Version backs optimistic-concurrency writes in the store.
type Subscription struct {
	ID        string
	ScopeID   string
	PlanState PlanState
	PlanCode  string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subscription) TransitionTo(state PlanState, now time.Time) error {
	if s == nil {
		return nil
	}
	if !state.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidPlanStateTransition, state)
	}
	if s.PlanState == state {
		s.UpdatedAt = now
		return nil
	}
	if !planTransitionAllowed(s.PlanState, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPlanStateTransition, s.PlanState, state)
	}
	s.PlanState = state
	s.UpdatedAt = now
	return nil
}

func planTransitionAllowed(from PlanState, to PlanState) bool {
	switch from {
	case PlanStateFree:
		return to == PlanStatePaid
	case PlanStatePaid:
		return to == PlanStatePastDue || to == PlanStateFree
	case PlanStatePastDue:
		return to == PlanStatePaid || to == PlanStateFree
	default:
		return false
	}
}

// Event is a verified, identity-bearing callback ready for dispatch. Payload
// carries the parsed fields the transition functions consume; RawBody keeps
// the original bytes for audit trails.
type Event struct {
	Identity   EventIdentity
	Type       string
	Payload    map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

type SideEffectKind string

const (
	SideEffectNotify SideEffectKind = "notify"
)

// SideEffect is a request produced by a transition function. Side effects run
// only after the domain-state write commits; delivery is at-least-once.
type SideEffect struct {
	Kind     SideEffectKind
	Channel  string
	Template string
	Data     map[string]any
}

// Outcome is what applying an event produced. Summary is persisted as the
// record's result_summary and replayed verbatim to duplicate deliveries.
type Outcome struct {
	Summary     map[string]any
	SideEffects []SideEffect
}
