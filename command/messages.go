package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

const (
	TypeProcessDelivery         = "ingest.command.delivery.process"
	TypeRedrivePending          = "ingest.command.redrive.run"
	TypeCreateSubscription      = "ingest.command.subscription.create"
	TypeUpdateSubscriptionState = "ingest.command.subscription.update_state"
)

type ProcessDeliveryMessage struct {
	Request core.InboundRequest
}

func (ProcessDeliveryMessage) Type() string { return TypeProcessDelivery }

func (m ProcessDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if len(m.Request.Body) == 0 {
		return fmt.Errorf("command: request body is required")
	}
	return nil
}

type RedrivePendingMessage struct {
	BatchSize int
}

func (RedrivePendingMessage) Type() string { return TypeRedrivePending }

func (m RedrivePendingMessage) Validate() error {
	if m.BatchSize < 0 {
		return fmt.Errorf("command: batch size must be >= 0")
	}
	return nil
}

type CreateSubscriptionMessage struct {
	Input core.CreateSubscriptionInput
}

func (CreateSubscriptionMessage) Type() string { return TypeCreateSubscription }

func (m CreateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Input.ScopeID) == "" {
		return fmt.Errorf("command: scope id is required")
	}
	if m.Input.PlanState != "" && !m.Input.PlanState.Valid() {
		return fmt.Errorf("command: unknown plan state %q", m.Input.PlanState)
	}
	return nil
}

type UpdateSubscriptionStateMessage struct {
	SubscriptionID  string
	ExpectedVersion int
	State           core.PlanState
	PlanCode        string
}

func (UpdateSubscriptionStateMessage) Type() string { return TypeUpdateSubscriptionState }

func (m UpdateSubscriptionStateMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return fmt.Errorf("command: subscription id is required")
	}
	if m.ExpectedVersion < 1 {
		return fmt.Errorf("command: expected version must be >= 1")
	}
	if !m.State.Valid() {
		return fmt.Errorf("command: unknown plan state %q", m.State)
	}
	return nil
}
