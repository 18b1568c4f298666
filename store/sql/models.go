package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-ingest/core"
)

type eventRecord struct {
	bun.BaseModel `bun:"table:ingest_events,alias:ie"`

	ID            string         `bun:"id,pk"`
	ProviderID    string         `bun:"provider_id,notnull"`
	EventID       string         `bun:"event_id,notnull"`
	EventType     string         `bun:"event_type,notnull"`
	Status        string         `bun:"status,notnull"`
	Payload       []byte         `bun:"payload"`
	AttemptCount  int            `bun:"attempt_count,notnull"`
	ResultSummary map[string]any `bun:"result_summary,type:jsonb"`
	LastError     string         `bun:"last_error"`
	LeaseUntil    *time.Time     `bun:"lease_until,nullzero"`
	ReceivedAt    time.Time      `bun:"received_at,nullzero,notnull,default:current_timestamp"`
	AppliedAt     *time.Time     `bun:"applied_at,nullzero"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *eventRecord) toDomain() core.IdempotencyRecord {
	if r == nil {
		return core.IdempotencyRecord{}
	}
	out := core.IdempotencyRecord{
		Identity: core.EventIdentity{
			Provider: r.ProviderID,
			EventID:  r.EventID,
		},
		Status:        core.RecordStatus(r.Status),
		EventType:     r.EventType,
		Payload:       append([]byte(nil), r.Payload...),
		AttemptCount:  r.AttemptCount,
		ResultSummary: copyAnyMap(r.ResultSummary),
		LastError:     r.LastError,
		ReceivedAt:    r.ReceivedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.AppliedAt != nil {
		applied := *r.AppliedAt
		out.AppliedAt = &applied
	}
	if r.LeaseUntil != nil {
		out.LeaseUntil = *r.LeaseUntil
	}
	return out
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:ingest_subscriptions,alias:isub"`

	ID        string    `bun:"id,pk"`
	ScopeID   string    `bun:"scope_id,notnull"`
	PlanState string    `bun:"plan_state,notnull"`
	PlanCode  string    `bun:"plan_code,notnull"`
	Version   int       `bun:"version,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	return core.Subscription{
		ID:        r.ID,
		ScopeID:   r.ScopeID,
		PlanState: core.PlanState(r.PlanState),
		PlanCode:  r.PlanCode,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type authFailureRecord struct {
	bun.BaseModel `bun:"table:ingest_auth_failures,alias:iaf"`

	ID         string    `bun:"id,pk"`
	ProviderID string    `bun:"provider_id,notnull"`
	Reason     string    `bun:"reason,notnull"`
	Signature  string    `bun:"signature"`
	BodyDigest string    `bun:"body_digest"`
	OccurredAt time.Time `bun:"occurred_at,nullzero,notnull,default:current_timestamp"`
}

func (r *authFailureRecord) toDomain() core.AuthFailure {
	if r == nil {
		return core.AuthFailure{}
	}
	return core.AuthFailure{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		Reason:     r.Reason,
		Signature:  r.Signature,
		BodyDigest: r.BodyDigest,
		OccurredAt: r.OccurredAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
