package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessDeliveryMessage]         = (*ProcessDeliveryCommand)(nil)
	_ gocmd.Commander[RedrivePendingMessage]          = (*RedrivePendingCommand)(nil)
	_ gocmd.Commander[CreateSubscriptionMessage]      = (*CreateSubscriptionCommand)(nil)
	_ gocmd.Commander[UpdateSubscriptionStateMessage] = (*UpdateSubscriptionStateCommand)(nil)
)
