package core

import (
	"context"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.ServiceName = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected service_name validation failure")
	}

	cfg = DefaultConfig()
	cfg.Providers = []ProviderConfig{
		{ID: "payproc", SignatureHeader: "X-Payproc-Signature"},
		{ID: "payproc", SignatureHeader: "X-Payproc-Signature"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate provider rejection")
	}

	cfg = DefaultConfig()
	cfg.Providers = []ProviderConfig{{ID: "chatdesk"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected signature_header requirement")
	}
}

func TestCfgxConfigProviderAppliesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticRawConfigLoader(map[string]any{
		"service_name": "ingest-test",
	}))
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "ingest-test" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("expected default retry bound to survive, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestGoOptionsResolverLayerPrecedence(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{ServiceName: "ingest-file", ClaimLease: time.Minute}
	runtime := Config{ServiceName: "ingest-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.ServiceName != "ingest-runtime" {
		t.Fatalf("expected runtime layer to win, got %q", resolved.ServiceName)
	}
	if resolved.ClaimLease != time.Minute {
		t.Fatalf("expected file layer claim lease, got %s", resolved.ClaimLease)
	}
	if resolved.Retry.MaxAttempts != defaults.Retry.MaxAttempts {
		t.Fatalf("expected defaults to fill retry bound")
	}
}
