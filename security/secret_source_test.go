package security

import (
	"bytes"
	"context"
	"testing"
)

func TestStaticSecretSourceResolvesAndRotates(t *testing.T) {
	ctx := context.Background()
	source := NewStaticSecretSource(map[string][]byte{
		"payproc": []byte("whsec_original"),
	})

	secret, err := source.Secret(ctx, "payproc")
	if err != nil {
		t.Fatalf("resolve secret: %v", err)
	}
	if !bytes.Equal(secret, []byte("whsec_original")) {
		t.Fatalf("unexpected secret %q", secret)
	}

	if _, err := source.Secret(ctx, "unknown"); err == nil {
		t.Fatalf("expected missing provider error")
	}

	if err := source.Set("payproc", []byte("whsec_rotated")); err != nil {
		t.Fatalf("rotate secret: %v", err)
	}
	rotated, err := source.Secret(ctx, "payproc")
	if err != nil {
		t.Fatalf("resolve rotated secret: %v", err)
	}
	if !bytes.Equal(rotated, []byte("whsec_rotated")) {
		t.Fatalf("expected rotated secret, got %q", rotated)
	}
}

func TestStaticSecretSourceReturnsCopies(t *testing.T) {
	source := NewStaticSecretSource(map[string][]byte{
		"chatdesk": []byte("token"),
	})
	secret, err := source.Secret(context.Background(), "chatdesk")
	if err != nil {
		t.Fatalf("resolve secret: %v", err)
	}
	secret[0] = 'X'
	again, err := source.Secret(context.Background(), "chatdesk")
	if err != nil {
		t.Fatalf("resolve secret again: %v", err)
	}
	if !bytes.Equal(again, []byte("token")) {
		t.Fatalf("expected stored secret to be immutable, got %q", again)
	}
}

func TestEnvelopeSecretSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	source, err := NewEnvelopeSecretSource([]byte("app-key-material"), WithKeyID("app-key-1"))
	if err != nil {
		t.Fatalf("new envelope source: %v", err)
	}

	if err := source.Store(ctx, "payproc", []byte("whsec_signing")); err != nil {
		t.Fatalf("store secret: %v", err)
	}
	secret, err := source.Secret(ctx, "payproc")
	if err != nil {
		t.Fatalf("open secret: %v", err)
	}
	if !bytes.Equal(secret, []byte("whsec_signing")) {
		t.Fatalf("expected round-tripped secret, got %q", secret)
	}
}

func TestEnvelopeSecretSourceRejectsForeignKeyID(t *testing.T) {
	ctx := context.Background()
	writer, err := NewEnvelopeSecretSource([]byte("key-a"), WithKeyID("key-a"))
	if err != nil {
		t.Fatalf("new writer source: %v", err)
	}
	if err := writer.Store(ctx, "payproc", []byte("whsec")); err != nil {
		t.Fatalf("store secret: %v", err)
	}
	sealed, err := writer.seal([]byte("whsec"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	reader, err := NewEnvelopeSecretSource([]byte("key-a"), WithKeyID("key-b"))
	if err != nil {
		t.Fatalf("new reader source: %v", err)
	}
	if err := reader.Import("payproc", sealed); err != nil {
		t.Fatalf("import envelope: %v", err)
	}
	if _, err := reader.Secret(ctx, "payproc"); err == nil {
		t.Fatalf("expected key id mismatch error")
	}
}

func TestEnvelopeSecretSourceRequiresKeyMaterial(t *testing.T) {
	if _, err := NewEnvelopeSecretSource(nil); err == nil {
		t.Fatalf("expected key material requirement")
	}
}
