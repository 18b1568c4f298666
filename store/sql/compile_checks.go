package sqlstore

import "github.com/goliatone/go-ingest/core"

var (
	_ core.IdempotencyStore  = (*EventStore)(nil)
	_ core.SubscriptionStore = (*SubscriptionStore)(nil)
	_ core.AuthFailureSink   = (*AuthFailureStore)(nil)
	_ core.StoreProvider     = (*RepositoryFactory)(nil)
)
