package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ingest/core"
)

// AuthFailureStore persists the audit trail of rejected deliveries.
type AuthFailureStore struct {
	db   *bun.DB
	repo repository.Repository[*authFailureRecord]
	now  func() time.Time
}

func NewAuthFailureStore(db *bun.DB) (*AuthFailureStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*authFailureRecord](db, authFailureHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid auth failure repository wiring: %w", err)
		}
	}
	return &AuthFailureStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *AuthFailureStore) Record(ctx context.Context, failure core.AuthFailure) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: auth failure store is not configured")
	}
	failure.ProviderID = strings.TrimSpace(failure.ProviderID)
	if failure.ProviderID == "" {
		return fmt.Errorf("sqlstore: auth failure provider id is required")
	}
	record := &authFailureRecord{
		ID:         strings.TrimSpace(failure.ID),
		ProviderID: failure.ProviderID,
		Reason:     strings.TrimSpace(failure.Reason),
		Signature:  strings.TrimSpace(failure.Signature),
		BodyDigest: strings.TrimSpace(failure.BodyDigest),
		OccurredAt: failure.OccurredAt,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = s.now()
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *AuthFailureStore) List(ctx context.Context, limit int) ([]core.AuthFailure, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: auth failure store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("occurred_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuthFailure, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.AuthFailureSink = (*AuthFailureStore)(nil)
