package ingest

import (
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/identity"
	"github.com/goliatone/go-ingest/webhooks"
)

// PayProcBinding returns the built-in binding for hex HMAC payment
// processor webhooks.
func PayProcBinding(secrets core.SecretSource) ProviderBinding {
	return ProviderBinding{
		Template: webhooks.NewPayProcTemplate(secrets),
		Descriptor: identity.Descriptor{
			Provider:  "payproc",
			IDField:   "id",
			TypeField: "type",
		},
	}
}

// ChatDeskBinding returns the built-in binding for base64 HMAC messaging
// platform webhooks.
func ChatDeskBinding(secrets core.SecretSource) ProviderBinding {
	return ProviderBinding{
		Template: webhooks.NewChatDeskTemplate(secrets),
		Descriptor: identity.Descriptor{
			Provider:  "chatdesk",
			IDField:   "event_id",
			TypeField: "event_type",
		},
	}
}

// BuiltinProviderPack bundles the shipped provider bindings.
func BuiltinProviderPack(secrets core.SecretSource) ProviderPack {
	return ProviderPack{
		Name: "builtin",
		Bindings: []ProviderBinding{
			PayProcBinding(secrets),
			ChatDeskBinding(secrets),
		},
	}
}
