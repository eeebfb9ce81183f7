package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/payments"
	"github.com/maison-luxe/storefront/internal/platform/config"
	"github.com/maison-luxe/storefront/internal/platform/events"
	"github.com/maison-luxe/storefront/internal/platform/idempotency"
	"github.com/maison-luxe/storefront/internal/platform/observability"
	"github.com/maison-luxe/storefront/internal/platform/storage"
	"github.com/maison-luxe/storefront/internal/repositories"
	"github.com/maison-luxe/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Carts      services.CartStore
	Pricing    *services.PricingEngine
	Discounts  services.DiscountEngine
	Orders     services.OrderRecorder
	Dispatcher services.PaymentDispatcher
	Checkout   services.CheckoutService
	System     services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	// Receipts is nil when no archive bucket is configured.
	Receipts *storage.ReceiptArchiver
	Memo     idempotency.Store

	logger  *zap.Logger
	clock   func() time.Time
	closers []namedCloser

	stopJanitor context.CancelFunc
	janitor     sync.WaitGroup
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger    *zap.Logger
	registry  repositories.Registry
	build     services.BuildInfo
	clock     func() time.Time
	discounts []domain.Discount
	seeded    bool
}

// WithLogger sets the base logger services log through.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithRegistry bypasses backend selection, mainly for tests.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithBuildInfo sets the metadata reported by the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock injects the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithSeedDiscounts replaces the discount catalog loaded into a memory backend. Passing no
// discounts starts with an empty catalog.
func WithSeedDiscounts(discounts ...domain.Discount) Option {
	return func(o *containerOptions) {
		o.discounts = discounts
		o.seeded = true
	}
}

// NewContainer constructs the runtime dependencies from configuration. Collaborators that are
// not configured (wallet endpoint, archive bucket, event backend) are left out and the services
// degrade accordingly.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.clock == nil {
		options.clock = time.Now
	}

	c := &Container{
		Config: cfg,
		logger: options.logger,
		clock:  options.clock,
	}

	if err := c.build(ctx, options); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := c.Close(closeCtx); closeErr != nil {
			c.logger.Warn("container cleanup failed", zap.Error(closeErr))
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, options containerOptions) error {
	var shared backends
	if options.registry != nil {
		c.Repositories = options.registry
	} else {
		seed := options.discounts
		if !options.seeded && c.Config.Environment == "local" {
			seed = LocalDiscounts(c.clock())
		}
		reg, opened, err := c.buildRegistry(ctx, seed)
		if err != nil {
			return err
		}
		c.Repositories = reg
		shared = opened
	}

	memo, err := c.buildMemo(ctx, shared)
	if err != nil {
		return err
	}
	c.Memo = memo

	publisher, err := c.buildPublisher(ctx)
	if err != nil {
		return err
	}

	archiver, err := c.buildArchiver(ctx)
	if err != nil {
		return err
	}
	c.Receipts = archiver

	tokenizer, err := c.buildTokenizer()
	if err != nil {
		return err
	}
	wallet, err := c.buildWallet()
	if err != nil {
		return err
	}

	svc, err := c.buildServices(options.build, servicesInputs{
		publisher: publisher,
		archiver:  archiver,
		tokenizer: tokenizer,
		wallet:    wallet,
	})
	if err != nil {
		return err
	}
	c.Services = svc

	c.startJanitor()
	return nil
}

// Close stops background workers and releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.stopJanitor != nil {
		c.stopJanitor()
		c.janitor.Wait()
		c.stopJanitor = nil
	}

	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		closer := c.closers[i]
		if err := closer.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", closer.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) addCloser(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func (c *Container) eventLogger(name string) func(context.Context, string, map[string]any) {
	return observability.EventLogger(c.logger.Named(name))
}

// buildMemo keeps wallet attempt outcomes next to the checkout sessions: Firestore for the
// Firestore backend, Redis when carts live there, otherwise in process.
func (c *Container) buildMemo(ctx context.Context, shared backends) (idempotency.Store, error) {
	switch {
	case shared.firestore != nil && c.Config.Repositories.Backend == config.BackendFirestore:
		client, err := shared.firestore.Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("build idempotency store: %w", err)
		}
		return idempotency.NewFirestoreStore(client), nil
	case shared.redis != nil:
		store, err := idempotency.NewRedisStore(shared.redis, idempotency.WithRedisKeyPrefix(redisAttemptPrefix))
		if err != nil {
			return nil, fmt.Errorf("build idempotency store: %w", err)
		}
		return store, nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func (c *Container) buildPublisher(ctx context.Context) (services.OrderEventPublisher, error) {
	cfg := c.Config.Events
	fanout := events.NewFanoutPublisher()

	switch cfg.Backend {
	case config.EventsPubSub:
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Topic)
		c.addCloser("pubsub", func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		publisher, err := events.NewPubSubOrderPublisher(topic)
		if err != nil {
			return nil, fmt.Errorf("build pubsub publisher: %w", err)
		}
		fanout.Add(config.EventsPubSub, publisher)
	case config.EventsKafka:
		publisher, err := events.NewKafkaOrderPublisher(cfg.Topic, cfg.KafkaBrokers,
			events.WithKafkaErrorLogger(observability.NewPrintfAdapter(c.logger.Named("kafka"))),
		)
		if err != nil {
			return nil, fmt.Errorf("build kafka publisher: %w", err)
		}
		c.addCloser("kafka", func(context.Context) error { return publisher.Close() })
		fanout.Add(config.EventsKafka, publisher)
	}

	if fanout.Len() == 0 {
		return nil, nil
	}
	c.logger.Info("order events configured", zap.String("backend", cfg.Backend), zap.String("topic", cfg.Topic))
	return fanout, nil
}

func (c *Container) buildArchiver(ctx context.Context) (*storage.ReceiptArchiver, error) {
	cfg := c.Config.Archive
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	c.addCloser("storage", func(context.Context) error { return client.Close() })
	archiver, err := storage.NewReceiptArchiver(client, cfg.Bucket,
		storage.WithPrefix(cfg.Prefix),
		storage.WithClock(c.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("build receipt archiver: %w", err)
	}
	return archiver, nil
}

func (c *Container) buildTokenizer() (payments.CardTokenizer, error) {
	key := strings.TrimSpace(c.Config.Payments.StripeAPIKey)
	if key == "" {
		if c.Config.Environment != "local" {
			c.logger.Warn("stripe api key not configured; cards are tokenized locally")
		}
		return payments.NewLocalTokenizer(), nil
	}
	tokenizer, err := payments.NewStripeTokenizer(payments.StripeTokenizerConfig{
		APIKey: key,
		Logger: payments.StripeLogger(c.eventLogger("stripe")),
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe tokenizer: %w", err)
	}
	return tokenizer, nil
}

func (c *Container) buildWallet() (payments.WalletInitiator, error) {
	cfg := c.Config.Payments
	if strings.TrimSpace(cfg.WalletEndpoint) == "" {
		c.logger.Info("wallet endpoint not configured; mobile wallet payments are unavailable")
		return nil, nil
	}
	client, err := payments.NewWalletClient(payments.WalletClientConfig{
		Endpoint:           cfg.WalletEndpoint,
		APIKey:             cfg.WalletAPIKey,
		Timeout:            cfg.WalletTimeout,
		BreakerMaxFailures: uint32(cfg.BreakerMaxFailures),
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
		Logger:             c.eventLogger("wallet"),
	})
	if err != nil {
		return nil, fmt.Errorf("build wallet client: %w", err)
	}
	return client, nil
}

type servicesInputs struct {
	publisher services.OrderEventPublisher
	archiver  *storage.ReceiptArchiver
	tokenizer payments.CardTokenizer
	wallet    payments.WalletInitiator
}

func (c *Container) buildServices(build services.BuildInfo, in servicesInputs) (Services, error) {
	var svc Services
	reg := c.Repositories
	cfg := c.Config

	pricing, err := services.NewPricingEngine(pricingConfig(cfg.Pricing))
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	carts, err := services.NewCartStore(services.CartStoreDeps{
		Repository: reg.Carts(),
		Clock:      c.clock,
		Logger:     c.eventLogger("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart store: %w", err)
	}
	svc.Carts = carts

	discounts, err := services.NewDiscountEngine(services.DiscountEngineDeps{
		Repository: reg.Discounts(),
		Pricing:    pricing,
		Logger:     c.eventLogger("discounts"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount engine: %w", err)
	}
	svc.Discounts = discounts

	orderDeps := services.OrderRecorderDeps{
		UnitOfWork: reg,
		Orders:     reg.Orders(),
		Discounts:  reg.Discounts(),
		Publisher:  in.publisher,
		Clock:      c.clock,
		Logger:     c.eventLogger("orders"),
	}
	if in.archiver != nil {
		orderDeps.Archiver = in.archiver
	}
	orders, err := services.NewOrderRecorder(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order recorder: %w", err)
	}
	svc.Orders = orders

	dispatchDeps := services.PaymentDispatcherDeps{
		Orders:          orders,
		Carts:           carts,
		Memo:            c.Memo,
		MemoTTL:         cfg.Idempotency.TTL,
		InFlightTimeout: cfg.Payments.DispatchTimeout,
		Clock:           c.clock,
		Logger:          c.eventLogger("payments"),
	}
	if in.wallet != nil {
		dispatchDeps.Wallet = in.wallet
	}
	dispatcher, err := services.NewPaymentDispatcher(dispatchDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build payment dispatcher: %w", err)
	}
	svc.Dispatcher = dispatcher

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Sessions:        reg.CheckoutSessions(),
		Carts:           carts,
		Pricer:          pricing,
		Zones:           pricing,
		Discounts:       discounts,
		Dispatcher:      dispatcher,
		Orders:          orders,
		Tokenizer:       in.tokenizer,
		WalletProviders: cfg.Payments.WalletProviders,
		DispatchTimeout: cfg.Payments.DispatchTimeout,
		SessionTTL:      cfg.Session.CheckoutTTL,
		Clock:           c.clock,
		Logger:          c.eventLogger("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	if healthRepo := reg.Health(); healthRepo != nil {
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = c.clock().UTC()
		}
		systemDeps := services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            c.clock,
			Build:            build,
		}
		if reporter, ok := in.wallet.(services.BreakerReporter); ok {
			systemDeps.Wallet = reporter
		}
		system, err := services.NewSystemService(systemDeps)
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

func pricingConfig(cfg config.PricingConfig) services.PricingEngineConfig {
	out := services.PricingEngineConfig{
		TaxRate:  cfg.TaxRate,
		TaxBasis: services.TaxBasis(cfg.TaxBasis),
		DefaultZone: &services.ZoneRule{
			Name:          "default",
			FreeThreshold: cfg.FreeShippingThreshold,
			BaseRate:      cfg.BaseShippingRate,
		},
	}
	if len(cfg.Zones) > 0 {
		out.Zones = make(map[string]services.ZoneRule, len(cfg.Zones))
		for country, zone := range cfg.Zones {
			out.Zones[country] = services.ZoneRule{
				Name:          country,
				FreeThreshold: zone.FreeThreshold,
				BaseRate:      zone.BaseRate,
			}
		}
	}
	return out
}

func (c *Container) startJanitor() {
	interval := c.Config.Idempotency.CleanupInterval
	if c.Memo == nil || interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopJanitor = cancel
	c.janitor.Add(1)
	go func() {
		defer c.janitor.Done()
		idempotency.RunJanitor(ctx, c.Memo, interval, c.eventLogger("idempotency"))
	}()
}
