package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// HMACVerifier checks a header-borne HMAC-SHA256 digest of the raw request
// body against the provider's pre-shared secret. The comparison is
// constant-time. Verification is a pure function of (body, signature,
// secret) and has no side effects.
type HMACVerifier struct {
	Header   string
	Prefix   string
	Encoding string // hex | base64
	Secrets  core.SecretSource
}

func (v HMACVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	if v.Secrets == nil {
		return fmt.Errorf("webhooks: signature secret source is required")
	}
	secret, err := v.Secrets.Secret(ctx, req.ProviderID)
	if err != nil {
		return fmt.Errorf("webhooks: resolve secret for provider %q: %w", req.ProviderID, err)
	}
	if len(secret) == 0 {
		return fmt.Errorf("webhooks: signature secret is required")
	}

	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	}
	return nil
}

// SignatureHeader reports the transport header the verifier reads.
func (v HMACVerifier) SignatureHeader() string {
	return strings.TrimSpace(v.Header)
}

// HeaderTokenVerifier compares a static verification token, for providers
// that authenticate callbacks with a shared channel token instead of a body
// digest.
type HeaderTokenVerifier struct {
	Header  string
	Secrets core.SecretSource
}

func (v HeaderTokenVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	if v.Secrets == nil {
		return fmt.Errorf("webhooks: verification token source is required")
	}
	expected, err := v.Secrets.Secret(ctx, req.ProviderID)
	if err != nil {
		return fmt.Errorf("webhooks: resolve token for provider %q: %w", req.ProviderID, err)
	}
	if len(expected) == 0 {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), expected) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

// SignatureHeader reports the transport header the verifier reads.
func (v HeaderTokenVerifier) SignatureHeader() string {
	return strings.TrimSpace(v.Header)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var (
	_ core.Verifier = HMACVerifier{}
	_ core.Verifier = HeaderTokenVerifier{}
)
