package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ingest/core"
)

// EventStore is the durable idempotency ledger. Claims rely on the unique
// (provider_id, event_id) constraint, so two concurrent deliveries of the
// same event race on the insert and exactly one wins.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*eventRecord]
	now  func() time.Time
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	return &EventStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithNow overrides the clock, for tests.
func (s *EventStore) WithNow(now func() time.Time) *EventStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *EventStore) Claim(ctx context.Context, in core.ClaimInput) (core.ClaimResult, error) {
	if s == nil || s.db == nil {
		return core.ClaimResult{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if err := in.Identity.Validate(); err != nil {
		return core.ClaimResult{}, err
	}
	lease := in.Lease
	if lease <= 0 {
		lease = core.DefaultConfig().ClaimLease
	}
	now := s.now()
	leaseUntil := now.Add(lease)

	record := &eventRecord{
		ID:           uuid.NewString(),
		ProviderID:   strings.TrimSpace(in.Identity.Provider),
		EventID:      strings.TrimSpace(in.Identity.EventID),
		EventType:    strings.TrimSpace(in.EventType),
		Status:       string(core.RecordStatusClaimed),
		Payload:      append([]byte(nil), in.Payload...),
		AttemptCount: 1,
		LeaseUntil:   &leaseUntil,
		ReceivedAt:   now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.ClaimResult{}, err
		}
		existing, getErr := s.Get(ctx, in.Identity)
		if getErr != nil {
			return core.ClaimResult{}, getErr
		}
		return core.ClaimResult{Outcome: claimOutcomeFor(existing.Status), Record: existing}, nil
	}
	return core.ClaimResult{Outcome: core.ClaimFresh, Record: record.toDomain()}, nil
}

func (s *EventStore) Commit(ctx context.Context, identity core.EventIdentity, status core.RecordStatus, summary map[string]any, cause error) (core.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if !status.Terminal() {
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: commit status %q is not terminal", status)
	}
	now := s.now()
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}

	query := s.db.NewUpdate().
		Model((*eventRecord)(nil)).
		Set("status = ?", string(status)).
		Set("result_summary = ?", copyAnyMap(summary)).
		Set("last_error = ?", lastError).
		Set("lease_until = NULL").
		Set("updated_at = ?", now).
		Where("provider_id = ?", strings.TrimSpace(identity.Provider)).
		Where("event_id = ?", strings.TrimSpace(identity.EventID)).
		Where("status = ?", string(core.RecordStatusClaimed))
	if status == core.RecordStatusApplied {
		query = query.Set("applied_at = ?", now)
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return core.IdempotencyRecord{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.IdempotencyRecord{}, err
	}
	if affected == 0 {
		existing, getErr := s.Get(ctx, identity)
		if getErr != nil {
			return core.IdempotencyRecord{}, getErr
		}
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: commit %s in status %s: %w",
			identity.Key(), existing.Status, core.ErrRecordNotClaimed)
	}
	return s.Get(ctx, identity)
}

func (s *EventStore) RecordAttempt(ctx context.Context, identity core.EventIdentity, cause error, nextAttemptAt time.Time) (core.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	now := s.now()
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	var lease *time.Time
	if !nextAttemptAt.IsZero() {
		value := nextAttemptAt.UTC()
		lease = &value
	}

	result, err := s.db.NewUpdate().
		Model((*eventRecord)(nil)).
		Set("attempt_count = attempt_count + 1").
		Set("last_error = ?", lastError).
		Set("lease_until = ?", lease).
		Set("updated_at = ?", now).
		Where("provider_id = ?", strings.TrimSpace(identity.Provider)).
		Where("event_id = ?", strings.TrimSpace(identity.EventID)).
		Where("status = ?", string(core.RecordStatusClaimed)).
		Exec(ctx)
	if err != nil {
		return core.IdempotencyRecord{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.IdempotencyRecord{}, err
	}
	if affected == 0 {
		existing, getErr := s.Get(ctx, identity)
		if getErr != nil {
			return core.IdempotencyRecord{}, getErr
		}
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: record attempt %s in status %s: %w",
			identity.Key(), existing.Status, core.ErrRecordNotClaimed)
	}
	return s.Get(ctx, identity)
}

func (s *EventStore) Get(ctx context.Context, identity core.EventIdentity) (core.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &eventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(identity.Provider)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(identity.EventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: event %s: %w",
				identity.Key(), core.ErrRecordNotFound)
		}
		return core.IdempotencyRecord{}, err
	}
	return record.toDomain(), nil
}

// ClaimRedriveBatch re-leases claimed records whose lease lapsed before
// cutoff. The CTE guard keeps the update atomic so concurrent redrivers
// never share a record.
func (s *EventStore) ClaimRedriveBatch(ctx context.Context, limit int, cutoff time.Time, lease time.Duration) ([]core.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	if lease <= 0 {
		lease = core.DefaultConfig().ClaimLease
	}
	now := s.now()

	var records []eventRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH lapsed AS (
	SELECT id
	FROM ingest_events
	WHERE status = ?
	  AND (lease_until IS NULL OR lease_until < ?)
	ORDER BY lease_until ASC
	LIMIT ?
)
UPDATE ingest_events
SET lease_until = ?, updated_at = ?
WHERE id IN (SELECT id FROM lapsed)
  AND status = ?
RETURNING
	id,
	provider_id,
	event_id,
	event_type,
	status,
	payload,
	attempt_count,
	result_summary,
	last_error,
	lease_until,
	received_at,
	applied_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.RecordStatusClaimed),
			cutoff.UTC(),
			limit,
			now.Add(lease),
			now,
			string(core.RecordStatusClaimed),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.IdempotencyRecord, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *EventStore) ListFailed(ctx context.Context, limit int) ([]core.IdempotencyRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(core.RecordStatusFailed)),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.IdempotencyRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func claimOutcomeFor(status core.RecordStatus) core.ClaimOutcome {
	switch status {
	case core.RecordStatusApplied:
		return core.ClaimAlreadyApplied
	case core.RecordStatusFailed:
		return core.ClaimAlreadyFailed
	default:
		return core.ClaimAlreadyClaimed
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
