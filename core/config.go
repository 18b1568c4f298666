package core

import (
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type ProviderConfig struct {
	ID              string `koanf:"id" mapstructure:"id"`
	SignatureHeader string `koanf:"signature_header" mapstructure:"signature_header"`
	SignaturePrefix string `koanf:"signature_prefix" mapstructure:"signature_prefix"`
	Encoding        string `koanf:"encoding" mapstructure:"encoding"`
	IDField         string `koanf:"id_field" mapstructure:"id_field"`
	TypeField       string `koanf:"type_field" mapstructure:"type_field"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	ClaimLease  time.Duration    `koanf:"claim_lease" mapstructure:"claim_lease"`
	Retry       RetryConfig      `koanf:"retry" mapstructure:"retry"`
	Providers   []ProviderConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "ingest",
		ClaimLease:  30 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ClaimLease < 0 {
		return fmt.Errorf("core: claim_lease must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must not be negative")
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("core: retry backoff values must not be negative")
	}
	seen := map[string]struct{}{}
	for _, provider := range c.Providers {
		id := strings.TrimSpace(provider.ID)
		if id == "" {
			return fmt.Errorf("core: provider id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("core: duplicate provider id %q", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(provider.SignatureHeader) == "" {
			return fmt.Errorf("core: provider %q signature_header is required", id)
		}
	}
	return nil
}
