package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-ingest/core"
)

// MemoryAuthFailureSink keeps rejected-delivery audit entries in memory.
type MemoryAuthFailureSink struct {
	mu       sync.Mutex
	failures []core.AuthFailure
	Now      func() time.Time
}

func NewMemoryAuthFailureSink() *MemoryAuthFailureSink {
	return &MemoryAuthFailureSink{
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryAuthFailureSink) Record(_ context.Context, failure core.AuthFailure) error {
	if s == nil {
		return fmt.Errorf("inbound: auth failure sink is not configured")
	}
	if failure.ID == "" {
		failure.ID = uuid.NewString()
	}
	if failure.OccurredAt.IsZero() {
		failure.OccurredAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	return nil
}

func (s *MemoryAuthFailureSink) List(_ context.Context, limit int) ([]core.AuthFailure, error) {
	if s == nil {
		return nil, fmt.Errorf("inbound: auth failure sink is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuthFailure, 0, len(s.failures))
	for i := len(s.failures) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.failures[i])
	}
	return out, nil
}

func (s *MemoryAuthFailureSink) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.AuthFailureSink = (*MemoryAuthFailureSink)(nil)
