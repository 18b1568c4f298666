package inbound

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/identity"
)

// RedriverConfig bounds how aggressively lapsed claims are retried.
type RedriverConfig struct {
	BatchSize int
	Lease     time.Duration
	Retry     core.RetryConfig
}

// DefaultRedriverConfig matches the service-level retry policy.
func DefaultRedriverConfig() RedriverConfig {
	cfg := core.DefaultConfig()
	return RedriverConfig{
		BatchSize: 50,
		Lease:     cfg.ClaimLease,
		Retry:     cfg.Retry,
	}
}

// Redriver recovers claimed events whose lease lapsed, re-runs dispatch, and
// commits the outcome. Events that exhaust the retry budget are committed
// as failed so they stop consuming redrive capacity.
type Redriver struct {
	store      core.IdempotencyStore
	dispatcher core.Dispatcher
	config     RedriverConfig
	logger     core.Logger
	now        func() time.Time
}

func NewRedriver(store core.IdempotencyStore, dispatcher core.Dispatcher, config RedriverConfig) (*Redriver, error) {
	if store == nil {
		return nil, fmt.Errorf("inbound: idempotency store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("inbound: dispatcher is required")
	}
	defaults := DefaultRedriverConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if config.Retry.InitialBackoff <= 0 {
		config.Retry.InitialBackoff = defaults.Retry.InitialBackoff
	}
	if config.Retry.MaxBackoff <= 0 {
		config.Retry.MaxBackoff = defaults.Retry.MaxBackoff
	}
	return &Redriver{
		store:      store,
		dispatcher: dispatcher,
		config:     config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithLogger sets the redrive logger.
func (r *Redriver) WithLogger(logger core.Logger) *Redriver {
	if r != nil {
		r.logger = logger
	}
	return r
}

// WithNow overrides the clock, for tests.
func (r *Redriver) WithNow(now func() time.Time) *Redriver {
	if r != nil && now != nil {
		r.now = now
	}
	return r
}

// RedrivePending claims one batch of lapsed records and drives each to a
// terminal state or a backed-off next attempt.
func (r *Redriver) RedrivePending(ctx context.Context, batchSize int) (core.RedriveStats, error) {
	if r == nil || r.store == nil {
		return core.RedriveStats{}, fmt.Errorf("inbound: redriver is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = r.config.BatchSize
	}
	records, err := r.store.ClaimRedriveBatch(ctx, limit, r.now(), r.config.Lease)
	if err != nil {
		return core.RedriveStats{}, err
	}

	stats := core.RedriveStats{Claimed: len(records)}
	var redriveErr error
	for _, record := range records {
		outcome, err := r.redriveOne(ctx, record)
		stats.Applied += outcome.Applied
		stats.Retried += outcome.Retried
		stats.Failed += outcome.Failed
		if err != nil {
			redriveErr = joinErrors(redriveErr, err)
		}
	}
	return stats, redriveErr
}

func (r *Redriver) redriveOne(ctx context.Context, record core.IdempotencyRecord) (core.RedriveStats, error) {
	payload, err := identity.DecodePayload(record.Payload)
	if err != nil {
		return r.failRecord(ctx, record, fmt.Errorf("inbound: decode stored payload: %w", err))
	}

	outcome, err := r.dispatcher.Apply(ctx, core.Event{
		Identity:   record.Identity,
		Type:       record.EventType,
		Payload:    payload,
		RawBody:    record.Payload,
		ReceivedAt: record.ReceivedAt,
	})
	if err == nil {
		if _, commitErr := r.store.Commit(ctx, record.Identity, core.RecordStatusApplied, outcome.Summary, nil); commitErr != nil {
			// The record stays claimed; the next pass picks it up again.
			return core.RedriveStats{}, commitErr
		}
		return core.RedriveStats{Applied: 1}, nil
	}

	if errors.Is(err, core.ErrEventRejected) {
		return r.failRecord(ctx, record, err)
	}

	updated, attemptErr := r.store.RecordAttempt(ctx, record.Identity, err,
		r.now().Add(backoffDelay(r.config.Retry, record.AttemptCount)))
	if attemptErr != nil {
		return core.RedriveStats{}, joinErrors(err, attemptErr)
	}
	// attempt_count counts executions including the one this call just
	// scheduled, so the budget lapses once it would pass MaxAttempts.
	if updated.AttemptCount > r.config.Retry.MaxAttempts {
		exhausted := fmt.Errorf("%w after %d attempts: %v",
			core.ErrRetryBudgetExhausted, updated.AttemptCount-1, err)
		stats, failErr := r.failRecord(ctx, updated, exhausted)
		return stats, joinErrors(err, failErr)
	}
	r.logWarn("redrive attempt failed",
		"provider_id", record.Identity.Provider,
		"event_id", record.Identity.EventID,
		"attempt_count", updated.AttemptCount,
		"error", err,
	)
	return core.RedriveStats{Retried: 1}, err
}

func (r *Redriver) failRecord(ctx context.Context, record core.IdempotencyRecord, cause error) (core.RedriveStats, error) {
	if _, err := r.store.Commit(ctx, record.Identity, core.RecordStatusFailed, nil, cause); err != nil {
		return core.RedriveStats{}, joinErrors(cause, err)
	}
	r.logWarn("event permanently failed",
		"provider_id", record.Identity.Provider,
		"event_id", record.Identity.EventID,
		"error", cause,
	)
	return core.RedriveStats{Failed: 1}, nil
}

func (r *Redriver) logWarn(message string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Warn(message, args...)
}

func backoffDelay(retry core.RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(retry.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 || next > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return next
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return errors.Join(existing, next)
}

var _ core.Redriver = (*Redriver)(nil)
