package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/adapters/gologger"
	ingestcommand "github.com/goliatone/go-ingest/command"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/dispatch"
	"github.com/goliatone/go-ingest/identity"
	"github.com/goliatone/go-ingest/inbound"
	ingestquery "github.com/goliatone/go-ingest/query"
	sqlstore "github.com/goliatone/go-ingest/store/sql"
	"github.com/goliatone/go-ingest/webhooks"
)

// Commands bundles the write-side handlers built over one service instance.
type Commands struct {
	ProcessDelivery         *ingestcommand.ProcessDeliveryCommand
	RedrivePending          *ingestcommand.RedrivePendingCommand
	CreateSubscription      *ingestcommand.CreateSubscriptionCommand
	UpdateSubscriptionState *ingestcommand.UpdateSubscriptionStateCommand
}

// Queries bundles the read-side handlers built over one service instance.
type Queries struct {
	GetEventRecord   *ingestquery.GetEventRecordQuery
	ListFailedEvents *ingestquery.ListFailedEventsQuery
	ListAuthFailures *ingestquery.ListAuthFailuresQuery
	GetSubscription  *ingestquery.GetSubscriptionQuery
}

// Service is the assembled ingestion runtime: verification, idempotent
// claim/commit, dispatch, and redrive built over one store provider.
type Service struct {
	cfg         core.Config
	stores      core.StoreProvider
	dispatcher  *dispatch.Dispatcher
	coordinator *inbound.Coordinator
	redriver    *inbound.Redriver
	commands    Commands
	queries     Queries
	logger      core.Logger
}

type Option func(*serviceOptions)

type serviceOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	notifier       core.NotificationSender
	secrets        core.SecretSource
	stores         core.StoreProvider
	persistence    any
	verifier       core.Verifier
	extractor      core.IdentityExtractor
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
	runtime        core.Config
	hooks          *ExtensionHooks
	now            func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *serviceOptions) { o.loggerProvider = provider }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *serviceOptions) { o.metrics = metrics }
}

func WithNotifier(notifier core.NotificationSender) Option {
	return func(o *serviceOptions) { o.notifier = notifier }
}

func WithSecretSource(secrets core.SecretSource) Option {
	return func(o *serviceOptions) { o.secrets = secrets }
}

func WithStoreProvider(stores core.StoreProvider) Option {
	return func(o *serviceOptions) { o.stores = stores }
}

// WithPersistenceClient builds the SQL stores from a go-persistence-bun
// client (or a *bun.DB).
func WithPersistenceClient(client any) Option {
	return func(o *serviceOptions) { o.persistence = client }
}

func WithVerifier(verifier core.Verifier) Option {
	return func(o *serviceOptions) { o.verifier = verifier }
}

func WithExtractor(extractor core.IdentityExtractor) Option {
	return func(o *serviceOptions) { o.extractor = extractor }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *serviceOptions) { o.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *serviceOptions) { o.resolver = resolver }
}

// WithRuntimeConfig layers programmatic overrides on top of loaded config.
func WithRuntimeConfig(cfg core.Config) Option {
	return func(o *serviceOptions) { o.runtime = cfg }
}

func WithExtensionHooks(hooks *ExtensionHooks) Option {
	return func(o *serviceOptions) { o.hooks = hooks }
}

func WithNow(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// New assembles a Service from configuration. Provider verification and
// identity extraction are derived from cfg.Providers unless explicit
// verifier/extractor implementations are supplied.
func New(cfg core.Config, opts ...Option) (*Service, error) {
	options := serviceOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	resolved, err := resolveConfig(cfg, options)
	if err != nil {
		return nil, err
	}

	_, logger := resolveLogger(resolved.ServiceName, options)

	stores, err := resolveStores(options)
	if err != nil {
		return nil, err
	}

	verifier, extractor, err := resolveRouting(resolved, options)
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.NewDispatcher(stores.SubscriptionStore(), options.notifier)
	dispatcher.Logger = logger
	if options.hooks != nil {
		if err := options.hooks.ApplyTransitionPacks(dispatcher); err != nil {
			return nil, err
		}
	}

	coordinator := inbound.NewCoordinator(verifier, extractor, stores.IdempotencyStore(), dispatcher)
	coordinator.AuthFailures = stores.AuthFailureSink()
	coordinator.Logger = logger
	coordinator.Metrics = options.metrics
	coordinator.ClaimLease = resolved.ClaimLease
	coordinator.Retry = resolved.Retry
	if options.now != nil {
		coordinator.Now = options.now
	}

	redriver, err := inbound.NewRedriver(stores.IdempotencyStore(), dispatcher, inbound.RedriverConfig{
		Lease: resolved.ClaimLease,
		Retry: resolved.Retry,
	})
	if err != nil {
		return nil, err
	}
	redriver = redriver.WithLogger(logger)
	if options.now != nil {
		redriver = redriver.WithNow(options.now)
	}

	svc := &Service{
		cfg:         resolved,
		stores:      stores,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		redriver:    redriver,
		logger:      logger,
	}
	svc.commands = Commands{
		ProcessDelivery:         ingestcommand.NewProcessDeliveryCommand(coordinator),
		RedrivePending:          ingestcommand.NewRedrivePendingCommand(redriver),
		CreateSubscription:      ingestcommand.NewCreateSubscriptionCommand(stores.SubscriptionStore()),
		UpdateSubscriptionState: ingestcommand.NewUpdateSubscriptionStateCommand(stores.SubscriptionStore()),
	}
	svc.queries = Queries{
		GetEventRecord:   ingestquery.NewGetEventRecordQuery(stores.IdempotencyStore()),
		ListFailedEvents: ingestquery.NewListFailedEventsQuery(stores.IdempotencyStore()),
		ListAuthFailures: ingestquery.NewListAuthFailuresQuery(stores.AuthFailureSink()),
		GetSubscription:  ingestquery.NewGetSubscriptionQuery(stores.SubscriptionStore()),
	}
	return svc, nil
}

// Process runs one provider delivery through the coordinator.
func (s *Service) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if s == nil || s.coordinator == nil {
		return core.InboundResult{}, fmt.Errorf("ingest: service is not configured")
	}
	return s.coordinator.Process(ctx, req)
}

// Redrive runs one redrive pass over lapsed claims.
func (s *Service) Redrive(ctx context.Context, batchSize int) (core.RedriveStats, error) {
	if s == nil || s.redriver == nil {
		return core.RedriveStats{}, fmt.Errorf("ingest: service is not configured")
	}
	return s.redriver.RedrivePending(ctx, batchSize)
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.cfg
}

func (s *Service) Stores() core.StoreProvider {
	if s == nil {
		return nil
	}
	return s.stores
}

func (s *Service) Dispatcher() *dispatch.Dispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

func (s *Service) Coordinator() *inbound.Coordinator {
	if s == nil {
		return nil
	}
	return s.coordinator
}

func (s *Service) Redriver() *inbound.Redriver {
	if s == nil {
		return nil
	}
	return s.redriver
}

func (s *Service) Commands() Commands {
	if s == nil {
		return Commands{}
	}
	return s.commands
}

func (s *Service) Queries() Queries {
	if s == nil {
		return Queries{}
	}
	return s.queries
}

func resolveConfig(cfg core.Config, options serviceOptions) (core.Config, error) {
	defaults := core.DefaultConfig()

	loaded := cfg
	if options.configProvider != nil {
		var err error
		loaded, err = options.configProvider.Load(context.Background(), defaults)
		if err != nil {
			return core.Config{}, err
		}
	}

	resolver := options.resolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	resolved, err := resolver.Resolve(defaults, loaded, options.runtime)
	if err != nil {
		return core.Config{}, err
	}
	return resolved, nil
}

func resolveLogger(name string, options serviceOptions) (core.LoggerProvider, core.Logger) {
	return gologger.Resolve(name, options.loggerProvider, options.logger)
}

func resolveStores(options serviceOptions) (core.StoreProvider, error) {
	if options.stores != nil {
		return options.stores, nil
	}
	if options.persistence != nil {
		factory := sqlstore.NewRepositoryFactory()
		return factory.BuildStores(options.persistence)
	}
	return inbound.NewMemoryStores(), nil
}

func resolveRouting(cfg core.Config, options serviceOptions) (core.Verifier, core.IdentityExtractor, error) {
	if options.verifier != nil && options.extractor != nil {
		return options.verifier, options.extractor, nil
	}
	if options.verifier != nil || options.extractor != nil {
		return nil, nil, fmt.Errorf("ingest: verifier and extractor must be supplied together")
	}
	if len(cfg.Providers) == 0 {
		return nil, nil, fmt.Errorf("ingest: no providers configured and no verifier/extractor supplied")
	}
	if options.secrets == nil {
		return nil, nil, fmt.Errorf("ingest: secret source is required to build provider verifiers")
	}

	router := &providerRouter{
		verifiers:  map[string]core.Verifier{},
		extractors: map[string]identity.Descriptor{},
	}
	for _, provider := range cfg.Providers {
		id := strings.TrimSpace(provider.ID)
		template := webhooks.NewTemplateFromConfig(provider, options.secrets)
		router.verifiers[id] = template.Verifier
		router.extractors[id] = identity.NewDescriptorFromConfig(provider)
	}
	if options.hooks != nil {
		if err := options.hooks.ApplyProviderPacks(router); err != nil {
			return nil, nil, err
		}
	}
	return router, router, nil
}

// providerRouter fans requests out to per-provider verifiers and identity
// descriptors keyed on InboundRequest.ProviderID.
type providerRouter struct {
	verifiers  map[string]core.Verifier
	extractors map[string]identity.Descriptor
}

func (r *providerRouter) register(template webhooks.ProviderTemplate, descriptor identity.Descriptor) error {
	id := strings.TrimSpace(template.ProviderID)
	if id == "" {
		return fmt.Errorf("ingest: provider template id is required")
	}
	if template.Verifier == nil {
		return fmt.Errorf("ingest: provider template %q has no verifier", id)
	}
	if _, exists := r.verifiers[id]; exists {
		return fmt.Errorf("ingest: provider %q already registered", id)
	}
	r.verifiers[id] = template.Verifier
	r.extractors[id] = descriptor
	return nil
}

func (r *providerRouter) Verify(ctx context.Context, req core.InboundRequest) error {
	verifier, ok := r.verifiers[strings.TrimSpace(req.ProviderID)]
	if !ok {
		return fmt.Errorf("ingest: unknown provider %q", req.ProviderID)
	}
	return verifier.Verify(ctx, req)
}

func (r *providerRouter) Extract(req core.InboundRequest) (core.EventIdentity, string, error) {
	descriptor, ok := r.extractors[strings.TrimSpace(req.ProviderID)]
	if !ok {
		return core.EventIdentity{}, "", fmt.Errorf("ingest: unknown provider %q", req.ProviderID)
	}
	return descriptor.Extract(req)
}

var (
	_ core.Verifier          = (*providerRouter)(nil)
	_ core.IdentityExtractor = (*providerRouter)(nil)
)
