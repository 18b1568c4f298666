package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-ingest/core"
)

// TransitionFunc computes the next subscription state for an event. It must
// not perform I/O. A returned RejectionError marks the event as permanently
// inapplicable; any other error is treated as transient and retried.
type TransitionFunc func(event core.Event, sub core.Subscription) (TransitionResult, error)

// TransitionResult is the output of a pure transition function.
type TransitionResult struct {
	PlanState   core.PlanState
	PlanCode    string
	SideEffects []core.SideEffect
}

// RejectionError marks an event as permanently inapplicable to the current
// domain state. Rejected events are committed as failed without retry.
type RejectionError struct {
	Reason string
	Cause  error
}

func (e *RejectionError) Error() string {
	if e == nil {
		return "dispatch: event rejected"
	}
	if e.Cause != nil {
		return fmt.Sprintf("dispatch: event rejected: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("dispatch: event rejected: %s", e.Reason)
}

func (e *RejectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is lets callers test for rejection with errors.Is(err, core.ErrEventRejected)
// without depending on this package.
func (e *RejectionError) Is(target error) bool {
	return target == core.ErrEventRejected
}

// Reject builds a RejectionError with the given reason.
func Reject(reason string, cause error) *RejectionError {
	return &RejectionError{Reason: strings.TrimSpace(reason), Cause: cause}
}

// IsRejection reports whether err (or anything it wraps) is a RejectionError.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// Dispatcher maps event types to transition functions and applies their
// results to the subscription store.
type Dispatcher struct {
	Subscriptions core.SubscriptionStore
	Notifier      core.NotificationSender
	Logger        core.Logger

	mu          sync.RWMutex
	transitions map[string]TransitionFunc
}

// NewDispatcher builds a dispatcher with the built-in transitions registered.
func NewDispatcher(subs core.SubscriptionStore, notifier core.NotificationSender) *Dispatcher {
	d := &Dispatcher{
		Subscriptions: subs,
		Notifier:      notifier,
		transitions:   map[string]TransitionFunc{},
	}
	RegisterDefaults(d)
	return d
}

// Register binds a transition function to an event type. Registering the
// same type twice is a conflict.
func (d *Dispatcher) Register(eventType string, fn TransitionFunc) error {
	if d == nil {
		return fmt.Errorf("dispatch: dispatcher is nil")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("dispatch: event type is required")
	}
	if fn == nil {
		return fmt.Errorf("dispatch: transition func is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transitions == nil {
		d.transitions = map[string]TransitionFunc{}
	}
	if _, exists := d.transitions[eventType]; exists {
		return fmt.Errorf("dispatch: transition already registered for %q", eventType)
	}
	d.transitions[eventType] = fn
	return nil
}

func (d *Dispatcher) lookup(eventType string) (TransitionFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.transitions[eventType]
	return fn, ok
}

// Apply runs the registered transition for the event and persists the new
// subscription state. Unknown event types and events referencing missing or
// inconsistent domain state are rejected; optimistic concurrency conflicts
// surface as transient errors so the caller can retry.
func (d *Dispatcher) Apply(ctx context.Context, event core.Event) (core.Outcome, error) {
	if d == nil {
		return core.Outcome{}, fmt.Errorf("dispatch: dispatcher is nil")
	}
	if d.Subscriptions == nil {
		return core.Outcome{}, fmt.Errorf("dispatch: subscription store is required")
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return core.Outcome{}, Reject("event type is empty", core.ErrUnknownEventType)
	}

	fn, ok := d.lookup(eventType)
	if !ok {
		return core.Outcome{}, Reject(
			fmt.Sprintf("no transition registered for event type %q", eventType),
			core.ErrUnknownEventType,
		)
	}

	subID, err := subscriptionID(event.Payload)
	if err != nil {
		return core.Outcome{}, Reject("event does not reference a subscription", err)
	}

	sub, err := d.Subscriptions.Get(ctx, subID)
	if err != nil {
		if errors.Is(err, core.ErrSubscriptionNotFound) {
			return core.Outcome{}, Reject(
				fmt.Sprintf("subscription %q does not exist", subID), err,
			)
		}
		return core.Outcome{}, fmt.Errorf("dispatch: load subscription %q: %w", subID, err)
	}

	result, err := fn(event, sub)
	if err != nil {
		return core.Outcome{}, err
	}

	updated := sub
	if result.PlanState != "" && (result.PlanState != sub.PlanState || result.PlanCode != sub.PlanCode) {
		updated, err = d.Subscriptions.UpdateState(ctx, sub.ID, sub.Version, result.PlanState, result.PlanCode)
		if err != nil {
			if errors.Is(err, core.ErrInvalidPlanStateTransition) {
				return core.Outcome{}, Reject(
					fmt.Sprintf("plan state %s cannot move to %s", sub.PlanState, result.PlanState), err,
				)
			}
			return core.Outcome{}, fmt.Errorf("dispatch: update subscription %q: %w", sub.ID, err)
		}
	}

	d.deliverSideEffects(ctx, event, result.SideEffects)

	return core.Outcome{
		Summary: map[string]any{
			"event_type":      eventType,
			"subscription_id": updated.ID,
			"plan_state":      string(updated.PlanState),
			"plan_code":       updated.PlanCode,
			"version":         updated.Version,
		},
		SideEffects: result.SideEffects,
	}, nil
}

// deliverSideEffects runs after the state write. Delivery failures are
// logged, never propagated: the transition has already been applied.
func (d *Dispatcher) deliverSideEffects(ctx context.Context, event core.Event, effects []core.SideEffect) {
	if d.Notifier == nil || len(effects) == 0 {
		return
	}
	for _, effect := range effects {
		if effect.Kind != core.SideEffectNotify {
			continue
		}
		err := d.Notifier.Send(ctx, core.NotificationRequest{
			Channel:  effect.Channel,
			Template: effect.Template,
			Data:     effect.Data,
		})
		if err != nil && d.Logger != nil {
			d.Logger.Warn("side effect delivery failed",
				"provider_id", event.Identity.Provider,
				"event_id", event.Identity.EventID,
				"channel", effect.Channel,
				"template", effect.Template,
				"error", err,
			)
		}
	}
}

func subscriptionID(payload map[string]any) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("dispatch: payload is empty")
	}
	raw, ok := payload["subscription_id"]
	if !ok {
		if data, ok := payload["data"].(map[string]any); ok {
			raw = data["subscription_id"]
		}
	}
	id, ok := raw.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("dispatch: subscription_id is required")
	}
	return strings.TrimSpace(id), nil
}

var _ core.Dispatcher = (*Dispatcher)(nil)
