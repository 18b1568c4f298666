package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/core"
)

type DeliveryProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type ProcessDeliveryCommand struct {
	processor DeliveryProcessor
}

func NewProcessDeliveryCommand(processor DeliveryProcessor) *ProcessDeliveryCommand {
	return &ProcessDeliveryCommand{processor: processor}
}

func (c *ProcessDeliveryCommand) Execute(ctx context.Context, msg ProcessDeliveryMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: delivery processor is required")
	}
	out, err := c.processor.Process(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RedrivePendingCommand struct {
	redriver core.Redriver
}

func NewRedrivePendingCommand(redriver core.Redriver) *RedrivePendingCommand {
	return &RedrivePendingCommand{redriver: redriver}
}

func (c *RedrivePendingCommand) Execute(ctx context.Context, msg RedrivePendingMessage) error {
	if c == nil || c.redriver == nil {
		return commandDependencyError("command: redriver is required")
	}
	stats, err := c.redriver.RedrivePending(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

type CreateSubscriptionCommand struct {
	subscriptions core.SubscriptionStore
}

func NewCreateSubscriptionCommand(subscriptions core.SubscriptionStore) *CreateSubscriptionCommand {
	return &CreateSubscriptionCommand{subscriptions: subscriptions}
}

func (c *CreateSubscriptionCommand) Execute(ctx context.Context, msg CreateSubscriptionMessage) error {
	if c == nil || c.subscriptions == nil {
		return commandDependencyError("command: subscription store is required")
	}
	sub, err := c.subscriptions.Create(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, sub)
	return nil
}

type UpdateSubscriptionStateCommand struct {
	subscriptions core.SubscriptionStore
}

func NewUpdateSubscriptionStateCommand(subscriptions core.SubscriptionStore) *UpdateSubscriptionStateCommand {
	return &UpdateSubscriptionStateCommand{subscriptions: subscriptions}
}

func (c *UpdateSubscriptionStateCommand) Execute(ctx context.Context, msg UpdateSubscriptionStateMessage) error {
	if c == nil || c.subscriptions == nil {
		return commandDependencyError("command: subscription store is required")
	}
	sub, err := c.subscriptions.UpdateState(ctx, msg.SubscriptionID, msg.ExpectedVersion, msg.State, msg.PlanCode)
	if err != nil {
		return err
	}
	storeResult(ctx, sub)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
