package webhooks

import (
	"context"
	"testing"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/security"
)

func TestNewPayProcTemplate(t *testing.T) {
	secrets := security.NewStaticSecretSource(map[string][]byte{
		"payproc": []byte("whsec"),
	})
	template := NewPayProcTemplate(secrets)
	if template.ProviderID != "payproc" {
		t.Fatalf("expected payproc provider id, got %q", template.ProviderID)
	}

	body := []byte(`{"id":"evt_9"}`)
	err := template.Verifier.Verify(context.Background(), core.InboundRequest{
		ProviderID: "payproc",
		Headers: map[string]string{
			"X-Payproc-Signature": "sha256=" + signHex([]byte("whsec"), body),
		},
		Body: body,
	})
	if err != nil {
		t.Fatalf("expected template verifier to accept signed body: %v", err)
	}
}

func TestNewTemplateFromConfig(t *testing.T) {
	secrets := security.NewStaticSecretSource(map[string][]byte{
		"acme": []byte("secret"),
	})
	template := NewTemplateFromConfig(core.ProviderConfig{
		ID:              " acme ",
		SignatureHeader: "X-Acme-Sig",
		Encoding:        EncodingBase64,
	}, secrets)
	if template.ProviderID != "acme" {
		t.Fatalf("expected trimmed provider id, got %q", template.ProviderID)
	}

	body := []byte(`{"id":"evt_1"}`)
	err := template.Verifier.Verify(context.Background(), core.InboundRequest{
		ProviderID: "acme",
		Headers:    map[string]string{"X-Acme-Sig": signBase64([]byte("secret"), body)},
		Body:       body,
	})
	if err != nil {
		t.Fatalf("expected config-built verifier to accept signed body: %v", err)
	}
}
