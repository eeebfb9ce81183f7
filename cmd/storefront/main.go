package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/maison-luxe/storefront/internal/di"
	"github.com/maison-luxe/storefront/internal/handlers"
	"github.com/maison-luxe/storefront/internal/platform/config"
	"github.com/maison-luxe/storefront/internal/platform/observability"
	"github.com/maison-luxe/storefront/internal/platform/secrets"
	"github.com/maison-luxe/storefront/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	level, _, _ := config.Lookup("STOREFRONT_LOG_LEVEL")
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")

	resolver, err := newSecretResolver(ctx, logger)
	if err != nil {
		return fmt.Errorf("initialise secret resolver: %w", err)
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	build := buildInfo(cfg, startedAt)
	container, err := di.NewContainer(ctx, cfg,
		di.WithLogger(logger),
		di.WithBuildInfo(build),
	)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(container, logger, build),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening",
			zap.String("environment", cfg.Environment),
			zap.String("version", build.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-shutdown:
		logger.Info("shutdown signal received; draining requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func newRouter(c *di.Container, logger *zap.Logger, build services.BuildInfo) http.Handler {
	cfg := c.Config
	svc := c.Services
	projectID := traceProjectID(cfg)

	orderOpts := []handlers.OrderHandlersOption{}
	if c.Receipts != nil {
		orderOpts = append(orderOpts, handlers.WithReceiptLinker(c.Receipts))
	}

	session := handlers.SessionMiddleware(
		handlers.WithSessionHeader(cfg.Session.Header),
		handlers.WithSessionCookie(cfg.Session.Cookie),
	)

	return handlers.NewRouter(
		handlers.WithSessionMiddleware(session),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthSystemService(svc.System),
		)),
		handlers.WithCartRoutes(handlers.NewCartHandlers(svc.Carts, svc.Pricing).Routes),
		handlers.WithDiscountRoutes(handlers.NewDiscountHandlers(svc.Discounts).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(svc.Checkout).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(svc.Orders, orderOpts...).Routes),
	)
}

func newSecretResolver(ctx context.Context, logger *zap.Logger) (*secrets.Resolver, error) {
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := lookup("STOREFRONT_SECRETS_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithProject(project))
	} else if project := lookup("STOREFRONT_FIRESTORE_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("STOREFRONT_SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewResolver(ctx, opts...)
}

// requiredSecretNames lists secrets a deployed environment cannot start without.
func requiredSecretNames() []string {
	var required []string
	if lookup("STOREFRONT_PAYMENTS_WALLET_ENDPOINT") != "" {
		required = append(required, "Payments.WalletAPIKey")
	}
	if env := strings.ToLower(lookup("STOREFRONT_ENVIRONMENT")); env == "prod" || env == "production" {
		required = append(required, "Payments.StripeAPIKey")
	}
	return required
}

func buildInfo(cfg config.Config, started time.Time) services.BuildInfo {
	version := lookup("STOREFRONT_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookup("STOREFRONT_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	if id := strings.TrimSpace(cfg.Events.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Secrets.ProjectID)
}

func lookup(key string) string {
	value, _, err := config.Lookup(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
