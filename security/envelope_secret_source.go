package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goliatone/go-ingest/core"
)

const envelopePrefix = "ingest.secret.v1:"

type Option func(*EnvelopeSecretSource)

// EnvelopeSecretSource stores provider signing secrets as AES-256-GCM
// envelopes sealed under an application key. Envelopes carry key id and
// version so the app key can be rotated without re-issuing provider secrets
// in flight.
type EnvelopeSecretSource struct {
	key     []byte
	keyID   string
	version int

	mu        sync.RWMutex
	envelopes map[string][]byte
}

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func WithKeyID(id string) Option {
	return func(source *EnvelopeSecretSource) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			source.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(source *EnvelopeSecretSource) {
		if version > 0 {
			source.version = version
		}
	}
}

func NewEnvelopeSecretSource(keyMaterial []byte, opts ...Option) (*EnvelopeSecretSource, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	source := &EnvelopeSecretSource{
		key:       normalizeKey(key),
		keyID:     "app-key",
		version:   1,
		envelopes: map[string][]byte{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(source)
	}
	return source, nil
}

// Store seals the plaintext provider secret and keeps the envelope.
func (s *EnvelopeSecretSource) Store(_ context.Context, providerID string, secret []byte) error {
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

	sealed, err := s.seal(secret)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envelopes == nil {
		s.envelopes = map[string][]byte{}
	}
	s.envelopes[providerID] = sealed
	return nil
}

// Import accepts an already-sealed envelope, e.g. read from configuration.
func (s *EnvelopeSecretSource) Import(providerID string, sealed []byte) error {
	if s == nil {
		return fmt.Errorf("security: secret source is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return fmt.Errorf("security: provider id is required")
	}
	if len(sealed) == 0 {
		return fmt.Errorf("security: sealed envelope is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envelopes == nil {
		s.envelopes = map[string][]byte{}
	}
	s.envelopes[providerID] = append([]byte(nil), sealed...)
	return nil
}

func (s *EnvelopeSecretSource) Secret(_ context.Context, providerID string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: secret source is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, fmt.Errorf("security: provider id is required")
	}
	s.mu.RLock()
	sealed, ok := s.envelopes[providerID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("security: no secret configured for provider %q", providerID)
	}
	return s.open(sealed)
}

func (s *EnvelopeSecretSource) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *EnvelopeSecretSource) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	data, err := json.Marshal(envelope{
		KeyID:      s.keyID,
		Version:    s.version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func (s *EnvelopeSecretSource) open(sealed []byte) ([]byte, error) {
	payload := string(sealed)
	payload = strings.TrimPrefix(payload, envelopePrefix)

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.KeyID != "" && parsed.KeyID != s.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, s.keyID)
	}
	if parsed.Version > 0 && parsed.Version != s.version {
		return nil, fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, s.version)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretSource = (*EnvelopeSecretSource)(nil)
