// Package clientkit assembles a multi-API client: it sizes the shared worker
// pool for the enabled modules, wires every module to its own request queue
// and token bucket, and hands back a ready *Client.
package clientkit

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-clientkit/classify"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/events"
	"github.com/goliatone/go-clientkit/modules"
	"github.com/goliatone/go-clientkit/modules/graphql"
	"github.com/goliatone/go-clientkit/modules/rest"
	"github.com/goliatone/go-clientkit/modules/stream"
	"github.com/goliatone/go-clientkit/pool"
	"github.com/goliatone/go-clientkit/ratelimit"
	"github.com/goliatone/go-clientkit/transport"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Builder collects configuration and runtime collaborators. Every With
// method returns a new Builder and leaves the receiver untouched.
type Builder struct {
	config            core.Config
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metrics           core.MetricsRecorder
	pool              core.WorkerPool
	eventManager      *events.Manager
	eventHandlerKind  events.HandlerKind
	credentialManager core.CredentialManager
	httpClient        transport.HTTPDoer
	streamWriter      core.StreamWriter
	stateStore        ratelimit.StateStore
	transports        *transport.Registry
	classifier        *classify.Classifier
}

func NewBuilder() Builder {
	return Builder{eventHandlerKind: events.HandlerSimple}
}

// WithConfig sets the runtime configuration layer. Zero values fall back to
// loaded and default values.
func (b Builder) WithConfig(cfg core.Config) Builder {
	b.config = cfg.Clone()
	return b
}

func (b Builder) WithConfigProvider(provider core.ConfigProvider) Builder {
	b.configProvider = provider
	return b
}

func (b Builder) WithOptionsResolver(resolver core.OptionsResolver) Builder {
	b.optionsResolver = resolver
	return b
}

func (b Builder) WithLogger(logger core.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) WithLoggerProvider(provider core.LoggerProvider) Builder {
	b.loggerProvider = provider
	return b
}

func (b Builder) WithMetrics(recorder core.MetricsRecorder) Builder {
	b.metrics = recorder
	return b
}

// WithPool supplies an externally owned worker pool. The client reads its
// capacity but never resizes or closes it.
func (b Builder) WithPool(p core.WorkerPool) Builder {
	b.pool = p
	return b
}

// WithEventManager supplies an event manager, which must already have a
// default handler.
func (b Builder) WithEventManager(manager *events.Manager) Builder {
	b.eventManager = manager
	return b
}

// WithEventHandlerKind picks the default handler created when no event
// manager is supplied.
func (b Builder) WithEventHandlerKind(kind events.HandlerKind) Builder {
	b.eventHandlerKind = kind
	return b
}

func (b Builder) WithCredentialManager(manager core.CredentialManager) Builder {
	b.credentialManager = manager
	return b
}

func (b Builder) WithHTTPClient(client transport.HTTPDoer) Builder {
	b.httpClient = client
	return b
}

func (b Builder) WithStreamWriter(writer core.StreamWriter) Builder {
	b.streamWriter = writer
	return b
}

// WithStateStore sets where the helper checkpoints rate limit state.
func (b Builder) WithStateStore(store ratelimit.StateStore) Builder {
	b.stateStore = store
	return b
}

func (b Builder) WithTransportRegistry(registry *transport.Registry) Builder {
	b.transports = registry
	return b
}

func (b Builder) WithClassifier(classifier *classify.Classifier) Builder {
	b.classifier = classifier
	return b
}

// Build runs the one-shot assembly. On any error no client is returned and
// every resource created along the way is released.
func (b Builder) Build(ctx context.Context) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	provider, logger := glog.Resolve("clientkit", b.loggerProvider, b.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("clientkit"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	cfg, err := b.resolveConfig(ctx)
	if err != nil {
		return nil, err
	}
	enabled := cfg.Modules()
	logger.Debug("client configuration resolved", "client", cfg.ClientName, "modules", len(enabled))

	credentials := b.credentialManager
	if credentials == nil {
		credentials = core.NewMemoryCredentialManager()
	}
	if err := credentials.RegisterIdentityProvider(ctx, core.IdentityProviderFromConfig(cfg)); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "clientkit: register identity provider", core.ErrorFatalConfiguration, map[string]any{
			"client": cfg.ClientName,
		})
	}

	manager, ownsManager, err := b.resolveEventManager(logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("event manager ready", "client", cfg.ClientName, "manager", manager.ID())

	reserved := 0
	if handler, ok := manager.DefaultHandler(); ok {
		reserved = events.HandlerRequirement(handler.Kind())
	}
	provisioned, err := pool.Provision(cfg.ClientName, enabled, reserved, b.pool, pool.WithLogger(logger))
	if err != nil {
		if ownsManager {
			_ = manager.Close()
		}
		return nil, core.WrapError(err, goerrors.CategoryInternal, "clientkit: provision worker pool", core.ErrorFatalConfiguration, map[string]any{
			"client": cfg.ClientName,
		})
	}
	if handler, ok := manager.DefaultHandler(); ok {
		if pooled, ok := handler.(*events.PooledHandler); ok {
			pooled.Bind(provisioned.Pool)
		}
	}

	client := &Client{
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		events:      manager,
		ownsEvents:  ownsManager,
		provisioned: provisioned,
		stateStore:  b.stateStore,
		modules:     map[core.ModuleKind]modules.Handle{},
	}
	if client.stateStore == nil {
		client.stateStore = ratelimit.NewMemoryStateStore()
	}

	if provisioned.Warning != nil {
		logger.Warn("supplied worker pool is undersized",
			"pool", provisioned.Pool.Name(),
			"capacity", provisioned.Capacity,
			"required", provisioned.Required,
		)
		client.warnings = append(client.warnings, provisioned.Warning)
		client.publish(ctx, events.KindPoolUndersized, "", map[string]any{
			"pool":     provisioned.Pool.Name(),
			"capacity": provisioned.Capacity,
			"required": provisioned.Required,
		})
	}

	if err := b.buildModules(ctx, client, enabled); err != nil {
		client.release()
		return nil, err
	}

	client.startHelper()
	client.publish(ctx, events.KindClientBuilt, "", map[string]any{
		"pool":     provisioned.Pool.Name(),
		"required": provisioned.Required,
		"modules":  len(enabled),
	})
	logger.Debug("client built", "client", cfg.ClientName, "pool", provisioned.Pool.Name())
	return client, nil
}

func (b Builder) resolveConfig(ctx context.Context) (core.Config, error) {
	configProvider := b.configProvider
	if configProvider == nil {
		configProvider = core.NewCfgxConfigProvider(nil)
	}
	resolver := b.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := configProvider.Load(ctx, defaults)
	if err != nil {
		return core.Config{}, fatalConfiguration(err, "clientkit: load configuration")
	}
	cfg, err := resolver.Resolve(defaults, loaded, b.config)
	if err != nil {
		return core.Config{}, fatalConfiguration(err, "clientkit: resolve configuration")
	}
	return cfg, nil
}

func (b Builder) resolveEventManager(logger core.Logger) (*events.Manager, bool, error) {
	if b.eventManager != nil {
		if _, ok := b.eventManager.DefaultHandler(); !ok {
			return nil, false, core.FatalConfigurationError("clientkit: supplied event manager has no default handler")
		}
		return b.eventManager, false, nil
	}
	handler, err := events.NewHandler(b.eventHandlerKind, nil, logger)
	if err != nil {
		return nil, false, err
	}
	return events.NewManager(events.WithDefaultHandler(handler)), true, nil
}

func (b Builder) buildModules(ctx context.Context, client *Client, enabled []core.ModuleKind) error {
	registry := b.transports
	if registry == nil {
		registry = transport.NewDefaultRegistry(b.httpClient, client.config.Endpoint(core.ModuleGraphQL))
	}
	writer := b.streamWriter
	if writer == nil {
		writer = transport.NewUnsupportedStreamWriter("no stream writer configured")
	}
	classifier := b.classifier
	if classifier == nil {
		classifier = classify.New()
	}

	for _, kind := range enabled {
		build, err := moduleBuilder(kind, registry, writer)
		if err != nil {
			return moduleBuildError(kind, err)
		}
		handle, err := build(ctx, modules.Dependencies{
			Module:     kind,
			Config:     client.config,
			Pool:       client.provisioned.Pool,
			Classifier: classifier,
			Metrics:    client.metrics,
			Logger:     client.logger,
			StateStore: client.stateStore,
		})
		if err != nil {
			return moduleBuildError(kind, err)
		}
		client.modules[kind] = handle
		client.order = append(client.order, kind)
		client.logger.Debug("module started", "client", client.config.ClientName, "module", string(kind))
		client.publish(ctx, events.KindModuleStarted, kind, nil)
	}
	return nil
}

func moduleBuilder(kind core.ModuleKind, registry *transport.Registry, writer core.StreamWriter) (modules.Builder, error) {
	surface, ok := core.ModuleSurface(kind)
	if !ok {
		return nil, errors.New("unknown module " + string(kind))
	}
	switch surface {
	case core.SurfaceStream:
		return stream.NewBuilder(writer), nil
	case core.SurfaceQuery:
		adapter, err := registry.ForSurface(surface)
		if err != nil {
			return nil, err
		}
		return graphql.NewBuilder(adapter), nil
	default:
		adapter, err := registry.ForSurface(surface)
		if err != nil {
			return nil, err
		}
		return rest.NewBuilder(adapter), nil
	}
}

func moduleBuildError(kind core.ModuleKind, err error) error {
	return core.WrapError(err, goerrors.CategoryInternal, "clientkit: build module "+string(kind), core.ErrorModuleBuild, map[string]any{
		"module": string(kind),
	})
}

func fatalConfiguration(err error, message string) error {
	wrapped := core.WrapError(err, goerrors.CategoryValidation, strings.TrimSpace(message), core.ErrorFatalConfiguration, nil)
	return wrapped.WithSeverity(goerrors.SeverityFatal)
}
