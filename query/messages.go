package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

const (
	TypeGetEventRecord   = "ingest.query.event.get"
	TypeListFailedEvents = "ingest.query.event.list_failed"
	TypeListAuthFailures = "ingest.query.auth_failure.list"
	TypeGetSubscription  = "ingest.query.subscription.get"
)

type GetEventRecordMessage struct {
	Identity core.EventIdentity
}

func (GetEventRecordMessage) Type() string { return TypeGetEventRecord }

func (m GetEventRecordMessage) Validate() error {
	if strings.TrimSpace(m.Identity.Provider) == "" {
		return fmt.Errorf("query: provider is required")
	}
	if strings.TrimSpace(m.Identity.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type ListFailedEventsMessage struct {
	Limit int
}

func (ListFailedEventsMessage) Type() string { return TypeListFailedEvents }

func (m ListFailedEventsMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type ListAuthFailuresMessage struct {
	Limit int
}

func (ListAuthFailuresMessage) Type() string { return TypeListAuthFailures }

func (m ListAuthFailuresMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetSubscriptionMessage struct {
	SubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return fmt.Errorf("query: subscription id is required")
	}
	return nil
}
