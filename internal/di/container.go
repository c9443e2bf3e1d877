package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/auth"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/events"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/idempotency"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/observability"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/textutil"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
	"github.com/Abdullah97825/Matjary-sub000/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders services.OrderService
	Promos services.PromoValidator
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	Authenticator *auth.Authenticator
	Events        services.OrderEventPublisher
	Idempotency   idempotency.Store
	Metrics       *observability.Metrics

	probes  map[string]func(context.Context) error
	closers []func(context.Context) error
}

// Option customises container construction, mostly for tests.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	clock         func() time.Time
	authenticator *auth.Authenticator
	publisher     services.OrderEventPublisher
}

// WithLogger sets the base logger handed to services and stores.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithAuthenticator skips verifier construction and uses authn as is.
func WithAuthenticator(authn *auth.Authenticator) Option {
	return func(o *options) {
		o.authenticator = authn
	}
}

// WithPublisher skips transport construction and publishes order events through publisher.
func WithPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// NewContainer constructs the runtime dependencies around an already opened registry.
// The container takes ownership of reg and closes it in Close.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
		Metrics:      observability.NewMetrics(cfg.Metrics.Namespace),
		probes:       map[string]func(context.Context) error{"storage": reg.Health},
	}
	c.closers = append(c.closers, reg.Close)

	if err := c.build(ctx, o); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	c.Events = o.publisher
	if c.Events == nil {
		publisher, closeFn, err := openPublisher(ctx, c.Config)
		if err != nil {
			return fmt.Errorf("build order event publisher: %w", err)
		}
		c.Events = publisher
		c.closers = append(c.closers, closeFn)
	}

	c.Authenticator = o.authenticator
	if c.Authenticator == nil {
		authn, err := newAuthenticator(ctx, c.Config)
		if err != nil {
			return fmt.Errorf("build authenticator: %w", err)
		}
		c.Authenticator = authn
	}

	c.openIdempotencyStore()

	sanitizer := textutil.NewSanitizer(0)
	c.Services.Promos = services.NewPromoValidator(o.clock)
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Store:               c.Repositories,
		Promos:              c.Services.Promos,
		Events:              c.Events,
		Metrics:             c.Metrics,
		Clock:               o.clock,
		Logger:              observability.NewEventLogger(o.logger.Named("orders")),
		Sanitizer:           sanitizer.Clean,
		CancelRestoresStock: c.Config.Orders.CancelRestoresStock,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orders
	return nil
}

// ReadinessProbes returns the dependency checks served by /readyz, keyed by name.
func (c *Container) ReadinessProbes() map[string]func(context.Context) error {
	out := make(map[string]func(context.Context) error, len(c.probes))
	for name, probe := range c.probes {
		out[name] = probe
	}
	return out
}

// Close releases resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, func(context.Context) error, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendNone:
		return nil, func(context.Context) error { return nil }, nil
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Events.Topic))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error {
			return errors.Join(publisher.Close(), client.Close())
		}, nil
	case config.EventsBackendKafka:
		publisher, err := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.Topic))
		if err != nil {
			return nil, nil, err
		}
		return publisher, func(context.Context) error { return publisher.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events backend %q", cfg.Events.Backend)
	}
}

func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return auth.NewAuthenticator(verifier), nil
	case config.AuthModeDevToken:
		verifier, err := auth.NewDevTokenVerifier(cfg.Auth.DevTokenSecret, cfg.Auth.DevTokenIssuer)
		if err != nil {
			return nil, err
		}
		return auth.NewAuthenticator(verifier), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func (c *Container) openIdempotencyStore() {
	idem := c.Config.Idempotency
	if idem.Backend != config.IdempotencyBackendRedis {
		c.Idempotency = idempotency.NewMemoryStore()
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     idem.RedisAddr,
		Password: idem.RedisPassword,
		DB:       idem.RedisDB,
	})
	c.Idempotency = idempotency.NewRedisStore(client)
	c.probes["idempotency"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
}
