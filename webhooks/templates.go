package webhooks

import (
	"strings"

	"github.com/goliatone/go-ingest/core"
)

// ProviderTemplate bundles the verification spec for one provider surface.
// Header names and digest encodings are provider-specific configuration,
// never hardcoded in the coordinator.
type ProviderTemplate struct {
	ProviderID string
	Verifier   core.Verifier
}

// NewPayProcTemplate matches payment processors that sign with hex-encoded
// HMAC-SHA256 under a "sha256=" prefix.
func NewPayProcTemplate(secrets core.SecretSource) ProviderTemplate {
	return ProviderTemplate{
		ProviderID: "payproc",
		Verifier: HMACVerifier{
			Header:   "X-Payproc-Signature",
			Prefix:   "sha256=",
			Encoding: EncodingHex,
			Secrets:  secrets,
		},
	}
}

// NewChatDeskTemplate matches messaging platforms that sign with
// base64-encoded HMAC-SHA256.
func NewChatDeskTemplate(secrets core.SecretSource) ProviderTemplate {
	return ProviderTemplate{
		ProviderID: "chatdesk",
		Verifier: HMACVerifier{
			Header:   "X-Chatdesk-Hmac-Sha256",
			Encoding: EncodingBase64,
			Secrets:  secrets,
		},
	}
}

// NewTemplateFromConfig builds a template from configured provider settings.
func NewTemplateFromConfig(cfg core.ProviderConfig, secrets core.SecretSource) ProviderTemplate {
	return ProviderTemplate{
		ProviderID: strings.TrimSpace(cfg.ID),
		Verifier: HMACVerifier{
			Header:   strings.TrimSpace(cfg.SignatureHeader),
			Prefix:   strings.TrimSpace(cfg.SignaturePrefix),
			Encoding: strings.TrimSpace(cfg.Encoding),
			Secrets:  secrets,
		},
	}
}
