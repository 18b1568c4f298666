package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type ClaimOutcome string

const (
	ClaimFresh          ClaimOutcome = "fresh"
	ClaimAlreadyClaimed ClaimOutcome = "already_claimed"
	ClaimAlreadyApplied ClaimOutcome = "already_applied"
	ClaimAlreadyFailed  ClaimOutcome = "already_failed"
)

type ClaimResult struct {
	Outcome ClaimOutcome
	Record  IdempotencyRecord
}

type ClaimInput struct {
	Identity  EventIdentity
	EventType string
	Payload   []byte
	Lease     time.Duration
}

// IdempotencyStore is the single source of truth for "has this event already
// been applied". Claim must be an atomic check-and-insert: under concurrent
// callers for the same identity exactly one observes ClaimFresh.
type IdempotencyStore interface {
	Claim(ctx context.Context, in ClaimInput) (ClaimResult, error)
	// Commit transitions a claimed record to applied or failed. It fails
	// loudly when the record is not currently claimed.
	Commit(ctx context.Context, identity EventIdentity, status RecordStatus, summary map[string]any, cause error) (IdempotencyRecord, error)
	// RecordAttempt increments attempt_count on a still-claimed record after
	// a transient processing failure and re-leases it until nextAttemptAt.
	// A zero nextAttemptAt releases the lease immediately.
	RecordAttempt(ctx context.Context, identity EventIdentity, cause error, nextAttemptAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, identity EventIdentity) (IdempotencyRecord, error)
	// ClaimRedriveBatch re-leases claimed records whose lease lapsed before
	// cutoff so a single redriver instance owns each attempt.
	ClaimRedriveBatch(ctx context.Context, limit int, cutoff time.Time, lease time.Duration) ([]IdempotencyRecord, error)
	ListFailed(ctx context.Context, limit int) ([]IdempotencyRecord, error)
}

type CreateSubscriptionInput struct {
	ScopeID   string
	PlanState PlanState
	PlanCode  string
}

// SubscriptionStore exposes the domain state with optimistic concurrency:
// UpdateState succeeds only when expectedVersion still matches.
type SubscriptionStore interface {
	Get(ctx context.Context, id string) (Subscription, error)
	Create(ctx context.Context, in CreateSubscriptionInput) (Subscription, error)
	UpdateState(ctx context.Context, id string, expectedVersion int, state PlanState, planCode string) (Subscription, error)
}

// SecretSource resolves the pre-shared signing secret for a provider. It is
// injected into verifiers rather than read from ambient state so secrets can
// be rotated and tested independently.
type SecretSource interface {
	Secret(ctx context.Context, providerID string) ([]byte, error)
}

type NotificationRequest struct {
	Channel  string
	Template string
	Data     map[string]any
}

// NotificationSender delivers side effects fire-and-forget after commit.
// Downstream deduplication is assumed; a failed send never fails the event.
type NotificationSender interface {
	Send(ctx context.Context, req NotificationRequest) error
}

type AuthFailure struct {
	ID         string
	ProviderID string
	Reason     string
	Signature  string
	BodyDigest string
	OccurredAt time.Time
}

// AuthFailureSink records signature-verification failures for audit and
// incident response. Failures never reach the idempotency store.
type AuthFailureSink interface {
	Record(ctx context.Context, failure AuthFailure) error
	List(ctx context.Context, limit int) ([]AuthFailure, error)
}

// InboundRequest is one provider callback: raw body bytes plus transport
// headers. Body must stay raw until the signature is verified.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Replayed   bool
	Metadata   map[string]any
}

type Verifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

type IdentityExtractor interface {
	Extract(req InboundRequest) (EventIdentity, string, error)
}

type Dispatcher interface {
	Apply(ctx context.Context, event Event) (Outcome, error)
}

// StoreProvider hands out the persistent stores built over one database.
type StoreProvider interface {
	IdempotencyStore() IdempotencyStore
	SubscriptionStore() SubscriptionStore
	AuthFailureSink() AuthFailureSink
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type RedriveStats struct {
	Claimed int
	Applied int
	Retried int
	Failed  int
}

type Redriver interface {
	RedrivePending(ctx context.Context, batchSize int) (RedriveStats, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// JobWorkerHook observes worker lifecycle events for queue-driven jobs such
// as scheduled redrive passes.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
