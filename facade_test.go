package ingest_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"

	ingest "github.com/goliatone/go-ingest"
	"github.com/goliatone/go-ingest/core"
	ingestquery "github.com/goliatone/go-ingest/query"
	"github.com/goliatone/go-ingest/security"
)

func payprocConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Providers = []core.ProviderConfig{
		{
			ID:              "payproc",
			SignatureHeader: "X-Payproc-Signature",
			SignaturePrefix: "sha256=",
			Encoding:        "hex",
			IDField:         "id",
			TypeField:       "type",
		},
	}
	return cfg
}

func payprocSecrets() core.SecretSource {
	return security.NewStaticSecretSource(map[string][]byte{
		"payproc": []byte("whsec_test"),
	})
}

func signPayproc(body []byte) string {
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestNew_ProcessesDeliveryEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, err := ingest.New(payprocConfig(), ingest.WithSecretSource(payprocSecrets()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	sub, err := svc.Stores().SubscriptionStore().Create(ctx, core.CreateSubscriptionInput{ScopeID: "acct_1"})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	body := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"charge.succeeded","subscription_id":%q,"amount":4900,"amount_due":4900,"plan":"pro-monthly"}`,
		sub.ID,
	))
	req := core.InboundRequest{
		ProviderID: "payproc",
		Headers:    map[string]string{"X-Payproc-Signature": signPayproc(body)},
		Body:       body,
	}

	result, err := svc.Process(ctx, req)
	if err != nil {
		t.Fatalf("process delivery: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result: %#v", result)
	}

	updated, err := svc.Stores().SubscriptionStore().Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if updated.PlanState != core.PlanStatePaid || updated.Version != 2 {
		t.Fatalf("expected paid subscription at version 2, got %#v", updated)
	}

	// same delivery again replays the stored result without a second write
	replayed, err := svc.Process(ctx, req)
	if err != nil {
		t.Fatalf("replay delivery: %v", err)
	}
	if !replayed.Replayed {
		t.Fatalf("expected replayed result, got %#v", replayed)
	}
	afterReplay, err := svc.Stores().SubscriptionStore().Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get subscription after replay: %v", err)
	}
	if afterReplay.Version != 2 {
		t.Fatalf("expected version to stay at 2, got %d", afterReplay.Version)
	}
}

func TestNew_RejectsTamperedSignatureAndAudits(t *testing.T) {
	ctx := context.Background()
	svc, err := ingest.New(payprocConfig(), ingest.WithSecretSource(payprocSecrets()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	body := []byte(`{"id":"evt_2","type":"charge.succeeded"}`)
	result, err := svc.Process(ctx, core.InboundRequest{
		ProviderID: "payproc",
		Headers:    map[string]string{"X-Payproc-Signature": "sha256=" + hex.EncodeToString(make([]byte, 32))},
		Body:       body,
	})
	if err == nil {
		t.Fatalf("expected verification error")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}

	failures, err := svc.Queries().ListAuthFailures.Query(ctx, ingestquery.ListAuthFailuresMessage{Limit: 10})
	if err != nil {
		t.Fatalf("list auth failures: %v", err)
	}
	if len(failures) != 1 || failures[0].ProviderID != "payproc" {
		t.Fatalf("expected one audited failure, got %#v", failures)
	}
}

func TestNew_UnknownProviderIsRejected(t *testing.T) {
	svc, err := ingest.New(payprocConfig(), ingest.WithSecretSource(payprocSecrets()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Process(context.Background(), core.InboundRequest{
		ProviderID: "unknown",
		Body:       []byte("{}"),
	})
	if err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown provider, got %d", result.StatusCode)
	}
}

func TestNew_RequiresRoutingConfiguration(t *testing.T) {
	cfg := core.DefaultConfig()
	if _, err := ingest.New(cfg); err == nil {
		t.Fatalf("expected error when no providers and no verifier are supplied")
	}
	if _, err := ingest.New(payprocConfig()); err == nil {
		t.Fatalf("expected error when providers are configured without a secret source")
	}
}

func TestNew_RuntimeConfigOverridesRetry(t *testing.T) {
	runtime := core.Config{}
	runtime.Retry = core.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: core.DefaultConfig().Retry.InitialBackoff,
		MaxBackoff:     core.DefaultConfig().Retry.MaxBackoff,
	}

	svc, err := ingest.New(payprocConfig(),
		ingest.WithSecretSource(payprocSecrets()),
		ingest.WithRuntimeConfig(runtime),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := svc.Config().Retry.MaxAttempts; got != 2 {
		t.Fatalf("expected runtime override of max attempts, got %d", got)
	}
	if got := svc.Config().ClaimLease; got != core.DefaultConfig().ClaimLease {
		t.Fatalf("expected default claim lease to survive, got %s", got)
	}
}
