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

// SubscriptionStore persists the subscription tier with an optimistic
// version column. UpdateState only lands when the caller's expected version
// still matches the row.
type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
	now  func() time.Time
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record := &subscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subscription{}, fmt.Errorf("sqlstore: subscription %q: %w",
				id, core.ErrSubscriptionNotFound)
		}
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.ScopeID = strings.TrimSpace(in.ScopeID)
	if in.ScopeID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription scope id is required")
	}
	state := in.PlanState
	if state == "" {
		state = core.PlanStateFree
	}
	if !state.Valid() {
		return core.Subscription{}, fmt.Errorf("sqlstore: unknown plan state %q", state)
	}
	now := s.now()
	record := &subscriptionRecord{
		ID:        uuid.NewString(),
		ScopeID:   in.ScopeID,
		PlanState: string(state),
		PlanCode:  strings.TrimSpace(in.PlanCode),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) UpdateState(ctx context.Context, id string, expectedVersion int, state core.PlanState, planCode string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	current, err := s.Get(ctx, id)
	if err != nil {
		return core.Subscription{}, err
	}
	// Validates the plan transition without persisting.
	if err := current.TransitionTo(state, s.now()); err != nil {
		return core.Subscription{}, err
	}

	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("plan_state = ?", string(state)).
		Set("plan_code = ?", strings.TrimSpace(planCode)).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Subscription{}, err
	}
	if affected == 0 {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription %q expected version %d: %w",
			id, expectedVersion, core.ErrSubscriptionVersionConflict)
	}
	return s.Get(ctx, id)
}
