package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/vibek01/ECOM-D1/internal/handlers"
	"github.com/vibek01/ECOM-D1/internal/payments"
	"github.com/vibek01/ECOM-D1/internal/platform/auth"
	"github.com/vibek01/ECOM-D1/internal/platform/config"
	pfirestore "github.com/vibek01/ECOM-D1/internal/platform/firestore"
	"github.com/vibek01/ECOM-D1/internal/platform/idempotency"
	"github.com/vibek01/ECOM-D1/internal/platform/jobs"
	"github.com/vibek01/ECOM-D1/internal/platform/observability"
	"github.com/vibek01/ECOM-D1/internal/repositories"
	firestoreRepo "github.com/vibek01/ECOM-D1/internal/repositories/firestore"
	"github.com/vibek01/ECOM-D1/internal/repositories/memory"
	"github.com/vibek01/ECOM-D1/internal/services"
)

const servicesMeterName = "github.com/vibek01/ECOM-D1/internal/services"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders  services.OrderService
	Catalog services.CatalogService
	Users   services.UserService
	System  services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Authenticator *auth.Authenticator
	Events        jobs.OrderEventPublisher
	Idempotency   idempotency.Store

	logger    *zap.Logger
	build     services.BuildInfo
	redis     redis.UniversalClient
	ownsRepos bool
}

type containerOptions struct {
	registry    repositories.Registry
	events      jobs.OrderEventPublisher
	idempotency idempotency.Store
	verifier    auth.TokenVerifier
	payments    payments.Processor
	build       services.BuildInfo
	clock       func() time.Time
}

// Option customises container construction. Tests use the options to substitute in-memory
// infrastructure for the configured backends.
type Option func(*containerOptions)

// WithRegistry uses reg instead of the store selected by configuration. The caller keeps ownership.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) { o.registry = reg }
}

// WithEventPublisher overrides the configured events transport.
func WithEventPublisher(publisher jobs.OrderEventPublisher) Option {
	return func(o *containerOptions) { o.events = publisher }
}

// WithIdempotencyStore overrides the configured idempotency backend.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *containerOptions) { o.idempotency = store }
}

// WithTokenVerifier overrides the verifier selected by the auth mode.
func WithTokenVerifier(verifier auth.TokenVerifier) Option {
	return func(o *containerOptions) { o.verifier = verifier }
}

// WithPaymentProcessor overrides the simulated payment processor.
func WithPaymentProcessor(processor payments.Processor) Option {
	return func(o *containerOptions) { o.payments = processor }
}

// WithBuildInfo sets the metadata reported by /healthz.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) { o.build = build }
}

// WithClock overrides the time source passed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies from configuration. Resources created here are
// released by Close, also when construction fails halfway.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg, logger: logger, build: options.build}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if cfg.Redis.Addr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var provider *pfirestore.Provider
	if options.registry != nil {
		c.Repositories = options.registry
	} else {
		c.Repositories, provider, err = openRegistry(cfg, logger, c.dependencyChecks()...)
		if err != nil {
			return nil, err
		}
		c.ownsRepos = true
	}

	c.Idempotency = options.idempotency
	if c.Idempotency == nil {
		c.Idempotency, err = c.buildIdempotencyStore(cfg, provider)
		if err != nil {
			return nil, err
		}
	}

	c.Events = options.events
	if c.Events == nil {
		c.Events, err = jobs.NewOrderEventPublisher(ctx, cfg, logger.Named("events"))
		if err != nil {
			return nil, fmt.Errorf("build event publisher: %w", err)
		}
	}

	verifier := options.verifier
	if verifier == nil {
		verifier, err = buildVerifier(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	c.Authenticator = auth.NewAuthenticator(verifier, auth.WithCookieName(cfg.Auth.CookieName))

	c.Services, err = c.buildServices(options)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenRegistry opens the repository registry selected by cfg.Store. The caller owns the result.
func OpenRegistry(cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	reg, _, err := openRegistry(cfg, logger)
	return reg, err
}

func openRegistry(cfg config.Config, logger *zap.Logger, checks ...repositories.DependencyCheck) (repositories.Registry, *pfirestore.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil, nil
	case config.StoreFirestore, "":
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		reg, err := firestoreRepo.NewRegistry(provider, checks...)
		if err != nil {
			_ = provider.Close(context.Background())
			return nil, nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, provider, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

func (c *Container) buildIdempotencyStore(cfg config.Config, provider *pfirestore.Provider) (idempotency.Store, error) {
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendMemory, "":
		return idempotency.NewMemoryStore(), nil
	case config.IdempotencyBackendRedis:
		if c.redis == nil {
			return nil, errors.New("idempotency: redis backend requires a redis address")
		}
		return idempotency.NewRedisStore(c.redis), nil
	case config.IdempotencyBackendFirestore:
		if provider == nil {
			return nil, errors.New("idempotency: firestore backend requires the firestore store")
		}
		return idempotency.NewFirestoreStore(provider), nil
	default:
		return nil, fmt.Errorf("idempotency: unsupported backend %q", cfg.Idempotency.Backend)
	}
}

func buildVerifier(ctx context.Context, cfg config.Config) (auth.TokenVerifier, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		return verifier, nil
	case config.AuthModeJWT, "":
		verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, auth.WithIssuer(cfg.Auth.JWTIssuer))
		if err != nil {
			return nil, fmt.Errorf("build jwt verifier: %w", err)
		}
		return verifier, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// dependencyChecks lists readiness checks for infrastructure outside the repository registry.
func (c *Container) dependencyChecks() []repositories.DependencyCheck {
	var checks []repositories.DependencyCheck
	if c.redis != nil {
		client := c.redis
		checks = append(checks, repositories.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	return checks
}

func (c *Container) buildServices(options containerOptions) (Services, error) {
	var svc Services
	reg := c.Repositories
	serviceLogger := observability.ServiceLogger(c.logger.Named("services"))

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      options.clock,
		Logger:     serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Users:      reg.Users(),
		UnitOfWork: reg,
		Payments:   options.payments,
		Clock:      options.clock,
		Events:     c.Events,
		Meter:      otel.Meter(servicesMeterName),
		Logger:     serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Logger: serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	health := reg.Health()
	if _, isMemory := reg.(*memory.Store); isMemory {
		if extra := c.dependencyChecks(); len(extra) > 0 {
			health, err = repositories.NewDependencyHealthRepository(append([]repositories.DependencyCheck{
				{Name: "memory", Check: func(context.Context) error { return nil }},
			}, extra...))
			if err != nil {
				return Services{}, fmt.Errorf("build health repository: %w", err)
			}
		}
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: health,
		Clock:            options.clock,
		Build:            c.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

// Router assembles the HTTP surface. metrics may be nil when metrics are disabled.
func (c *Container) Router(metrics http.Handler) http.Handler {
	projectID := c.traceProjectID()
	httpLogger := c.logger.Named("http")

	idempotencyMW := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(c.Config.Idempotency.Header),
		idempotency.WithTTL(c.Config.Idempotency.TTL),
		idempotency.WithLogger(c.logger.Named("idempotency")),
	)

	orderHandlers := handlers.NewOrderHandlers(c.Authenticator, c.Services.Orders,
		handlers.WithOrderIdempotency(idempotencyMW),
		handlers.WithOrderUserMiddlewares(handlers.UserRateLimit(c.Config.RateLimits.AuthenticatedPerMinute)),
	)
	productHandlers := handlers.NewProductHandlers(c.Authenticator, c.Services.Catalog)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.build),
		handlers.WithHealthSystemService(c.Services.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.InjectLoggerMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			handlers.IPRateLimit(c.Config.RateLimits.DefaultPerMinute),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	}
	if metrics != nil {
		opts = append(opts, handlers.WithMetricsHandler(metrics))
	}
	return handlers.NewRouter(opts...)
}

// RunBackground runs the idempotency sweeper until ctx is cancelled.
func (c *Container) RunBackground(ctx context.Context) {
	idempotency.RunCleanup(ctx, c.Idempotency, c.Config.Idempotency.CleanupInterval,
		c.Config.Idempotency.CleanupBatchSize, c.logger.Named("idempotency"))
}

// Close releases the event transport, the redis client and owned repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.ownsRepos && c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) traceProjectID() string {
	if id := strings.TrimSpace(c.Config.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Config.Firestore.ProjectID)
}
