package security

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-ingest/core"
)

// StaticSecretSource resolves provider signing secrets from an in-memory map.
// Intended for tests and single-tenant deployments; rotation happens through
// Set, which is safe for concurrent use.
type StaticSecretSource struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

func NewStaticSecretSource(secrets map[string][]byte) *StaticSecretSource {
	copied := make(map[string][]byte, len(secrets))
	for providerID, secret := range secrets {
		trimmed := strings.TrimSpace(providerID)
		if trimmed == "" || len(secret) == 0 {
			continue
		}
		copied[trimmed] = append([]byte(nil), secret...)
	}
	return &StaticSecretSource{secrets: copied}
}

func (s *StaticSecretSource) Secret(_ context.Context, providerID string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: secret source is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, fmt.Errorf("security: provider id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[providerID]
	if !ok {
		return nil, fmt.Errorf("security: no secret configured for provider %q", providerID)
	}
	return append([]byte(nil), secret...), nil
}

func (s *StaticSecretSource) Set(providerID string, secret []byte) error {
	if s == nil {
		return fmt.Errorf("security: secret source is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return fmt.Errorf("security: provider id is required")
	}
	if len(secret) == 0 {
		return fmt.Errorf("security: secret material is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets == nil {
		s.secrets = map[string][]byte{}
	}
	s.secrets[providerID] = append([]byte(nil), secret...)
	return nil
}

var _ core.SecretSource = (*StaticSecretSource)(nil)
