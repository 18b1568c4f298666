package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/core"
)

var (
	_ gocmd.Querier[GetEventRecordMessage, core.IdempotencyRecord]     = (*GetEventRecordQuery)(nil)
	_ gocmd.Querier[ListFailedEventsMessage, []core.IdempotencyRecord] = (*ListFailedEventsQuery)(nil)
	_ gocmd.Querier[ListAuthFailuresMessage, []core.AuthFailure]       = (*ListAuthFailuresQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]         = (*GetSubscriptionQuery)(nil)
)
