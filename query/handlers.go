package query

import (
	"context"

	"github.com/goliatone/go-ingest/core"
)

type EventRecordReader interface {
	Get(ctx context.Context, identity core.EventIdentity) (core.IdempotencyRecord, error)
	ListFailed(ctx context.Context, limit int) ([]core.IdempotencyRecord, error)
}

type AuthFailureReader interface {
	List(ctx context.Context, limit int) ([]core.AuthFailure, error)
}

type SubscriptionReader interface {
	Get(ctx context.Context, id string) (core.Subscription, error)
}

type GetEventRecordQuery struct {
	reader EventRecordReader
}

func NewGetEventRecordQuery(reader EventRecordReader) *GetEventRecordQuery {
	return &GetEventRecordQuery{reader: reader}
}

func (q *GetEventRecordQuery) Query(ctx context.Context, msg GetEventRecordMessage) (core.IdempotencyRecord, error) {
	if q == nil || q.reader == nil {
		return core.IdempotencyRecord{}, queryDependencyError("query: event record reader is required")
	}
	return q.reader.Get(ctx, msg.Identity)
}

type ListFailedEventsQuery struct {
	reader EventRecordReader
}

func NewListFailedEventsQuery(reader EventRecordReader) *ListFailedEventsQuery {
	return &ListFailedEventsQuery{reader: reader}
}

func (q *ListFailedEventsQuery) Query(ctx context.Context, msg ListFailedEventsMessage) ([]core.IdempotencyRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event record reader is required")
	}
	return q.reader.ListFailed(ctx, msg.Limit)
}

type ListAuthFailuresQuery struct {
	reader AuthFailureReader
}

func NewListAuthFailuresQuery(reader AuthFailureReader) *ListAuthFailuresQuery {
	return &ListAuthFailuresQuery{reader: reader}
}

func (q *ListAuthFailuresQuery) Query(ctx context.Context, msg ListAuthFailuresMessage) ([]core.AuthFailure, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: auth failure reader is required")
	}
	return q.reader.List(ctx, msg.Limit)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.Get(ctx, msg.SubscriptionID)
}
