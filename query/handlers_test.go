package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-ingest/core"
)

type stubEventRecordReader struct {
	getFn        func(ctx context.Context, identity core.EventIdentity) (core.IdempotencyRecord, error)
	listFailedFn func(ctx context.Context, limit int) ([]core.IdempotencyRecord, error)
}

func (s stubEventRecordReader) Get(ctx context.Context, identity core.EventIdentity) (core.IdempotencyRecord, error) {
	return s.getFn(ctx, identity)
}

func (s stubEventRecordReader) ListFailed(ctx context.Context, limit int) ([]core.IdempotencyRecord, error) {
	return s.listFailedFn(ctx, limit)
}

type stubAuthFailureReader struct {
	listFn func(ctx context.Context, limit int) ([]core.AuthFailure, error)
}

func (s stubAuthFailureReader) List(ctx context.Context, limit int) ([]core.AuthFailure, error) {
	return s.listFn(ctx, limit)
}

type stubSubscriptionReader struct {
	getFn func(ctx context.Context, id string) (core.Subscription, error)
}

func (s stubSubscriptionReader) Get(ctx context.Context, id string) (core.Subscription, error) {
	return s.getFn(ctx, id)
}

func TestGetEventRecordQuery_QueryDelegates(t *testing.T) {
	expected := core.IdempotencyRecord{
		Identity:  core.EventIdentity{Provider: "payproc", EventID: "evt_1"},
		EventType: "charge.succeeded",
		Status:    core.RecordStatusApplied,
	}
	called := false
	reader := stubEventRecordReader{
		getFn: func(_ context.Context, identity core.EventIdentity) (core.IdempotencyRecord, error) {
			called = true
			if identity.Provider != "payproc" || identity.EventID != "evt_1" {
				t.Fatalf("unexpected identity: %#v", identity)
			}
			return expected, nil
		},
	}

	qry := NewGetEventRecordQuery(reader)
	result, err := qry.Query(context.Background(), GetEventRecordMessage{
		Identity: core.EventIdentity{Provider: "payproc", EventID: "evt_1"},
	})
	if err != nil {
		t.Fatalf("query event record: %v", err)
	}
	if !called {
		t.Fatalf("expected event record reader invocation")
	}
	if result.Identity.EventID != "evt_1" || result.Status != core.RecordStatusApplied {
		t.Fatalf("unexpected record: %#v", result)
	}
}

func TestListFailedEventsQuery_QueryDelegates(t *testing.T) {
	reader := stubEventRecordReader{
		listFailedFn: func(_ context.Context, limit int) ([]core.IdempotencyRecord, error) {
			if limit != 20 {
				t.Fatalf("expected limit 20, got %d", limit)
			}
			return []core.IdempotencyRecord{
				{Identity: core.EventIdentity{Provider: "payproc", EventID: "evt_2"}, Status: core.RecordStatusFailed},
			}, nil
		},
	}

	qry := NewListFailedEventsQuery(reader)
	records, err := qry.Query(context.Background(), ListFailedEventsMessage{Limit: 20})
	if err != nil {
		t.Fatalf("query failed events: %v", err)
	}
	if len(records) != 1 || records[0].Identity.EventID != "evt_2" {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestListAuthFailuresQuery_QueryDelegates(t *testing.T) {
	reader := stubAuthFailureReader{
		listFn: func(_ context.Context, limit int) ([]core.AuthFailure, error) {
			if limit != 5 {
				t.Fatalf("expected limit 5, got %d", limit)
			}
			return []core.AuthFailure{{ID: "af_1", ProviderID: "payproc", Reason: "signature mismatch"}}, nil
		},
	}

	qry := NewListAuthFailuresQuery(reader)
	failures, err := qry.Query(context.Background(), ListAuthFailuresMessage{Limit: 5})
	if err != nil {
		t.Fatalf("query auth failures: %v", err)
	}
	if len(failures) != 1 || failures[0].Reason != "signature mismatch" {
		t.Fatalf("unexpected failures: %#v", failures)
	}
}

func TestGetSubscriptionQuery_QueryDelegates(t *testing.T) {
	reader := stubSubscriptionReader{
		getFn: func(_ context.Context, id string) (core.Subscription, error) {
			if id != "sub_1" {
				t.Fatalf("unexpected subscription id: %q", id)
			}
			return core.Subscription{ID: "sub_1", PlanState: core.PlanStatePaid, Version: 2}, nil
		},
	}

	qry := NewGetSubscriptionQuery(reader)
	sub, err := qry.Query(context.Background(), GetSubscriptionMessage{SubscriptionID: "sub_1"})
	if err != nil {
		t.Fatalf("query subscription: %v", err)
	}
	if sub.PlanState != core.PlanStatePaid {
		t.Fatalf("unexpected subscription: %#v", sub)
	}
}

func TestQueries_PropagateReaderErrors(t *testing.T) {
	wantErr := fmt.Errorf("storage unavailable")
	qry := NewGetEventRecordQuery(stubEventRecordReader{
		getFn: func(context.Context, core.EventIdentity) (core.IdempotencyRecord, error) {
			return core.IdempotencyRecord{}, wantErr
		},
	})
	_, err := qry.Query(context.Background(), GetEventRecordMessage{
		Identity: core.EventIdentity{Provider: "payproc", EventID: "evt_1"},
	})
	if err != wantErr {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{"get event ok", GetEventRecordMessage{Identity: core.EventIdentity{Provider: "payproc", EventID: "evt_1"}}, false},
		{"get event missing provider", GetEventRecordMessage{Identity: core.EventIdentity{EventID: "evt_1"}}, true},
		{"get event missing id", GetEventRecordMessage{Identity: core.EventIdentity{Provider: "payproc"}}, true},
		{"list failed ok", ListFailedEventsMessage{Limit: 10}, false},
		{"list failed negative", ListFailedEventsMessage{Limit: -1}, true},
		{"list auth failures ok", ListAuthFailuresMessage{}, false},
		{"list auth failures negative", ListAuthFailuresMessage{Limit: -5}, true},
		{"get subscription ok", GetSubscriptionMessage{SubscriptionID: "sub_1"}, false},
		{"get subscription missing id", GetSubscriptionMessage{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
