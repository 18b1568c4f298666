package dispatch

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

// Built-in event types.
const (
	EventChargeSucceeded      = "charge.succeeded"
	EventChargeFailed         = "charge.failed"
	EventSubscriptionCanceled = "subscription.canceled"
	EventMessageReceived      = "message.received"
)

// RegisterDefaults installs the built-in transitions on the dispatcher.
func RegisterDefaults(d *Dispatcher) {
	if d == nil {
		return
	}
	_ = d.Register(EventChargeSucceeded, ChargeSucceeded)
	_ = d.Register(EventChargeFailed, ChargeFailed)
	_ = d.Register(EventSubscriptionCanceled, SubscriptionCanceled)
	_ = d.Register(EventMessageReceived, MessageReceived)
}

// ChargeSucceeded moves the subscription to paid. A successful charge also
// clears a past_due delinquency. Zero or negative amounts are internally
// inconsistent and rejected.
func ChargeSucceeded(event core.Event, sub core.Subscription) (TransitionResult, error) {
	amount, ok := payloadNumber(event.Payload, "amount")
	if ok && amount <= 0 {
		return TransitionResult{}, Reject(
			fmt.Sprintf("charge amount %v is not positive", amount), nil,
		)
	}
	if due, okDue := payloadNumber(event.Payload, "amount_due"); okDue && ok && amount < due {
		return TransitionResult{}, Reject(
			fmt.Sprintf("charge amount %v does not cover amount due %v", amount, due), nil,
		)
	}
	planCode := payloadString(event.Payload, "plan")
	if planCode == "" {
		planCode = sub.PlanCode
	}
	return TransitionResult{
		PlanState: core.PlanStatePaid,
		PlanCode:  planCode,
		SideEffects: []core.SideEffect{{
			Kind:     core.SideEffectNotify,
			Channel:  "billing",
			Template: "payment_received",
			Data: map[string]any{
				"subscription_id": sub.ID,
				"plan":            planCode,
			},
		}},
	}, nil
}

// ChargeFailed marks a paid subscription delinquent. A failed charge against
// a free subscription has nothing to collect and is rejected.
func ChargeFailed(event core.Event, sub core.Subscription) (TransitionResult, error) {
	if sub.PlanState == core.PlanStateFree {
		return TransitionResult{}, Reject(
			fmt.Sprintf("subscription %q is on the free plan, nothing to charge", sub.ID), nil,
		)
	}
	return TransitionResult{
		PlanState: core.PlanStatePastDue,
		PlanCode:  sub.PlanCode,
		SideEffects: []core.SideEffect{{
			Kind:     core.SideEffectNotify,
			Channel:  "billing",
			Template: "payment_failed",
			Data: map[string]any{
				"subscription_id": sub.ID,
				"reason":          payloadString(event.Payload, "failure_reason"),
			},
		}},
	}, nil
}

// SubscriptionCanceled returns the subscription to the free tier from any
// state. Canceling an already-free subscription keeps it free.
func SubscriptionCanceled(event core.Event, sub core.Subscription) (TransitionResult, error) {
	if sub.PlanState == core.PlanStateFree {
		return TransitionResult{PlanState: core.PlanStateFree, PlanCode: sub.PlanCode}, nil
	}
	return TransitionResult{
		PlanState: core.PlanStateFree,
		PlanCode:  sub.PlanCode,
		SideEffects: []core.SideEffect{{
			Kind:     core.SideEffectNotify,
			Channel:  "account",
			Template: "subscription_canceled",
			Data: map[string]any{
				"subscription_id": sub.ID,
				"previous_plan":   sub.PlanCode,
			},
		}},
	}, nil
}

// MessageReceived acknowledges an inbound support message. The subscription
// state is untouched; the outcome is a routed notification.
func MessageReceived(event core.Event, sub core.Subscription) (TransitionResult, error) {
	body := payloadString(event.Payload, "body")
	if body == "" {
		return TransitionResult{}, Reject("message body is empty", nil)
	}
	return TransitionResult{
		PlanState: sub.PlanState,
		PlanCode:  sub.PlanCode,
		SideEffects: []core.SideEffect{{
			Kind:     core.SideEffectNotify,
			Channel:  "support",
			Template: "message_received",
			Data: map[string]any{
				"subscription_id": sub.ID,
				"sender":          payloadString(event.Payload, "sender"),
				"body":            body,
			},
		}},
	}, nil
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}

func payloadNumber(payload map[string]any, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch value := payload[key].(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}
