package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-inbox/adapters/gologger"
	inboxcommand "github.com/goliatone/go-inbox/command"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/dispatch"
	inboxquery "github.com/goliatone/go-inbox/query"
	"github.com/goliatone/go-inbox/queue"
	sqlstore "github.com/goliatone/go-inbox/store/sql"
	"github.com/goliatone/go-inbox/webhooks"
)

// Handlers are the reply-side collaborators the pipeline routes claimed events
// to. Messages and Registrations are required; Retractions defaults to the
// masking handler backed by the event store.
type Handlers struct {
	Messages      core.MessageHandler
	Registrations core.RegistrationHandler
	Retractions   core.RetractionHandler
}

// Commands bundles the go-command handlers built against a pipeline.
type Commands struct {
	IngestCallback *inboxcommand.IngestCallbackCommand
	IngestEvents   *inboxcommand.IngestEventsCommand
	Kick           *inboxcommand.KickCommand
	Drain          *inboxcommand.DrainCommand
}

// Queries bundles the go-command query handlers built against a pipeline.
type Queries struct {
	GetEvent   *inboxquery.GetEventQuery
	ListEvents *inboxquery.ListEventsQuery
}

// Pipeline wires the event store, dispatcher, processor, runner and ingestor
// into one owned unit. Construct with New (pre-built stores) or Setup
// (persistence client / bun DB plus config resolution).
type Pipeline struct {
	config   core.Config
	stores   core.StoreProvider
	runner   *queue.Runner
	ingestor *webhooks.Ingestor
	commands Commands
	queries  Queries
	logger   core.Logger
}

type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	verifier       webhooks.Verifier
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
	runtime        core.Config
}

func WithLogger(logger core.Logger) PipelineOption {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) PipelineOption {
	return func(o *pipelineOptions) {
		o.loggerProvider = provider
	}
}

// WithVerifier installs a callback signature verifier on the ingestion
// boundary, typically webhooks.NewHMACVerifier with the channel secret.
func WithVerifier(verifier webhooks.Verifier) PipelineOption {
	return func(o *pipelineOptions) {
		o.verifier = verifier
	}
}

func WithConfigProvider(provider core.ConfigProvider) PipelineOption {
	return func(o *pipelineOptions) {
		o.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) PipelineOption {
	return func(o *pipelineOptions) {
		o.resolver = resolver
	}
}

// WithRuntimeConfig layers programmatic overrides on top of loaded config,
// winning over both defaults and the config provider.
func WithRuntimeConfig(cfg core.Config) PipelineOption {
	return func(o *pipelineOptions) {
		o.runtime = cfg
	}
}

// New assembles a pipeline from an already validated config and pre-built
// stores. The event store must also implement the dispatch lookups
// (HasUnsendFor, and MaskMessageText when no retraction handler is given).
func New(cfg core.Config, stores core.StoreProvider, handlers Handlers, opts ...PipelineOption) (*Pipeline, error) {
	if stores == nil {
		return nil, fmt.Errorf("inbox: store provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := applyPipelineOptions(opts)
	_, logger := gologger.Resolve(cfg.ServiceName, options.loggerProvider, options.logger)

	eventStore := stores.EventStore()
	if eventStore == nil {
		return nil, fmt.Errorf("inbox: store provider returned nil event store")
	}

	retractions := handlers.Retractions
	if retractions == nil {
		masker, ok := eventStore.(dispatch.MessageMasker)
		if !ok {
			return nil, fmt.Errorf("inbox: event store %T cannot mask messages, provide a retraction handler", eventStore)
		}
		handler, err := dispatch.NewMaskingRetractionHandler(masker, logger)
		if err != nil {
			return nil, err
		}
		retractions = handler
	}

	dispatcher, err := dispatch.New(
		eventStore,
		handlers.Messages,
		retractions,
		handlers.Registrations,
		dispatch.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	processor, err := queue.NewProcessor(eventStore, dispatcher,
		queue.WithBatchSize(cfg.Queue.BatchSize),
		queue.WithLease(cfg.Queue.Lease),
		queue.WithRetryPolicy(queue.RetryPolicy{
			MaxAttempts:  cfg.Queue.MaxAttempts,
			InitialDelay: cfg.Queue.InitialBackoff,
			MaxDelay:     cfg.Queue.MaxBackoff,
		}),
		queue.WithProcessorLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	runner, err := queue.NewRunner(processor,
		queue.WithInterval(cfg.Queue.PollInterval),
		queue.WithRunnerLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	ingestorOptions := []webhooks.IngestorOption{webhooks.WithIngestLogger(logger)}
	if options.verifier != nil {
		ingestorOptions = append(ingestorOptions, webhooks.WithVerifier(options.verifier))
	}
	ingestor, err := webhooks.NewIngestor(eventStore, runner, ingestorOptions...)
	if err != nil {
		return nil, err
	}

	pipeline := &Pipeline{
		config:   cfg,
		stores:   stores,
		runner:   runner,
		ingestor: ingestor,
		logger:   logger,
	}
	pipeline.commands = Commands{
		IngestCallback: inboxcommand.NewIngestCallbackCommand(ingestor),
		IngestEvents:   inboxcommand.NewIngestEventsCommand(ingestor),
		Kick:           inboxcommand.NewKickCommand(runner),
		Drain:          inboxcommand.NewDrainCommand(runner),
	}
	pipeline.queries = Queries{
		GetEvent:   inboxquery.NewGetEventQuery(stores.EventReader()),
		ListEvents: inboxquery.NewListEventsQuery(stores.EventReader()),
	}
	return pipeline, nil
}

// Setup resolves config through the layered provider/resolver chain, builds
// the SQL stores from a go-persistence-bun client or *bun.DB and assembles the
// pipeline.
func Setup(ctx context.Context, database any, handlers Handlers, opts ...PipelineOption) (*Pipeline, error) {
	options := applyPipelineOptions(opts)

	defaults := core.DefaultConfig()
	loaded := defaults
	if options.configProvider != nil {
		cfg, err := options.configProvider.Load(ctx, defaults)
		if err != nil {
			return nil, err
		}
		loaded = cfg
	}

	resolver := options.resolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	cfg, err := resolver.Resolve(defaults, loaded, options.runtime)
	if err != nil {
		return nil, err
	}

	factory := sqlstore.NewRepositoryFactory()
	stores, err := factory.BuildStores(database)
	if err != nil {
		return nil, err
	}
	return New(cfg, stores, handlers, opts...)
}

func applyPipelineOptions(opts []PipelineOption) pipelineOptions {
	options := pipelineOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Start launches the interval ticker that drives passes between kicks.
func (p *Pipeline) Start(ctx context.Context) error {
	if p == nil || p.runner == nil {
		return fmt.Errorf("inbox: pipeline is not configured")
	}
	return p.runner.Start(ctx)
}

// Shutdown stops the ticker and waits up to timeout for the in-flight pass to
// finish. Claimed rows left behind by a forced exit are recovered later
// through lease expiry.
func (p *Pipeline) Shutdown(timeout time.Duration) error {
	if p == nil || p.runner == nil {
		return fmt.Errorf("inbox: pipeline is not configured")
	}
	p.runner.Stop()
	if !p.runner.WaitIdle(timeout) {
		return fmt.Errorf("inbox: drain timed out after %s with a pass still in flight", timeout)
	}
	return nil
}

// Kick triggers a pass unless one is already running and returns its
// completion channel.
func (p *Pipeline) Kick(ctx context.Context) <-chan struct{} {
	if p == nil || p.runner == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.runner.Kick(ctx)
}

// WaitIdle reports whether no pass is in flight, waiting up to timeout.
func (p *Pipeline) WaitIdle(timeout time.Duration) bool {
	if p == nil || p.runner == nil {
		return true
	}
	return p.runner.WaitIdle(timeout)
}

// IngestCallback verifies and persists one raw callback delivery, then kicks
// the processor. Returns the number of newly inserted rows.
func (p *Pipeline) IngestCallback(ctx context.Context, body []byte, signature string) (int, error) {
	if p == nil || p.ingestor == nil {
		return 0, fmt.Errorf("inbox: pipeline is not configured")
	}
	return p.ingestor.IngestCallback(ctx, body, signature)
}

// Ingest persists already-parsed event rows and kicks the processor.
func (p *Pipeline) Ingest(ctx context.Context, events []core.Event) (int, error) {
	if p == nil || p.ingestor == nil {
		return 0, fmt.Errorf("inbox: pipeline is not configured")
	}
	return p.ingestor.Ingest(ctx, events)
}

func (p *Pipeline) Commands() Commands {
	if p == nil {
		return Commands{}
	}
	return p.commands
}

func (p *Pipeline) Queries() Queries {
	if p == nil {
		return Queries{}
	}
	return p.queries
}

func (p *Pipeline) Stores() core.StoreProvider {
	if p == nil {
		return nil
	}
	return p.stores
}

func (p *Pipeline) Config() core.Config {
	if p == nil {
		return core.Config{}
	}
	return p.config
}
