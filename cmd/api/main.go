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

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zenkart/admin-api/internal/di"
	"github.com/zenkart/admin-api/internal/handlers"
	"github.com/zenkart/admin-api/internal/invoice"
	"github.com/zenkart/admin-api/internal/notifications"
	"github.com/zenkart/admin-api/internal/payments"
	"github.com/zenkart/admin-api/internal/platform/auth"
	"github.com/zenkart/admin-api/internal/platform/config"
	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/platform/jobs"
	"github.com/zenkart/admin-api/internal/platform/observability"
	"github.com/zenkart/admin-api/internal/platform/secrets"
	platformstorage "github.com/zenkart/admin-api/internal/platform/storage"
	"github.com/zenkart/admin-api/internal/repositories"
	firestoreRepo "github.com/zenkart/admin-api/internal/repositories/firestore"
	"github.com/zenkart/admin-api/internal/services"
	"github.com/zenkart/admin-api/internal/shipping"
)

func main() {
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx := observability.WithLogger(context.Background(), logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider,
		firestoreRepo.WithDependencyChecks(secretManagerCheck(fetcher)),
	)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)
	eventLogger := zapEventLogger()

	carrierClient, err := shipping.NewClient(shipping.ClientDeps{
		BaseURL:    cfg.Carrier.BaseURL,
		Email:      cfg.Carrier.Email,
		Password:   cfg.Carrier.Password,
		HTTPClient: &http.Client{Timeout: cfg.Carrier.RequestTimeout},
		Tokens:     shipping.NewTokenCache(cfg.Carrier.TokenTTL, nil),
	})
	if err != nil {
		logger.Fatal("failed to initialise carrier client", zap.Error(err))
	}

	requestBuilder, err := shipping.NewBuilder(shipping.BuilderDeps{
		Stock:          registry.Stock(),
		PickupLocation: cfg.Carrier.PickupLocation,
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment request builder", zap.Error(err))
	}

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherDeps{
		Endpoint:      cfg.Email.Endpoint,
		SenderAddress: cfg.Email.SenderAddress,
		HTTPClient:    &http.Client{Timeout: cfg.Email.RequestTimeout},
		Logger:        eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise notification dispatcher", zap.Error(err))
	}

	renderer, err := invoice.NewRenderer(invoice.RendererDeps{})
	if err != nil {
		logger.Fatal("failed to initialise invoice renderer", zap.Error(err))
	}

	var archiver services.InvoiceArchiver
	if cfg.Features.EnableInvoiceArchive {
		bucketWriter, err := platformstorage.NewBucketWriter(ctx, cfg.Storage.InvoicesBucket)
		if err != nil {
			logger.Fatal("failed to initialise storage bucket writer", zap.Error(err))
		}
		defer func() {
			if err := bucketWriter.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		archiver, err = platformstorage.NewInvoiceArchiver(platformstorage.InvoiceArchiverDeps{
			Writer: bucketWriter,
			Bucket: cfg.Storage.InvoicesBucket,
		})
		if err != nil {
			logger.Fatal("failed to initialise invoice archiver", zap.Error(err))
		}
	}

	var eventPublisher services.OrderEventPublisher
	if cfg.Features.EnableOrderEvents {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(cfg.Events.TopicID)
		defer topic.Stop()
		eventPublisher, err = jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	}

	var paymentsProvider payments.Provider
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: payments.StripeLogger(eventLogger),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		paymentsProvider = stripeProvider
	} else {
		logger.Warn("stripe api key not configured, payment lookups disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Collaborators{
		Carrier:            carrierClient,
		Builder:            requestBuilder,
		Notifier:           dispatcher,
		Invoices:           renderer,
		Archiver:           archiver,
		Events:             eventPublisher,
		StockMetrics:       metrics,
		FulfillmentMetrics: metrics,
		Logger:             eventLogger,
		Build:              buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier, auth.WithUserGetter(verifier))

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.Fulfillment,
		handlers.WithOrderRateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute),
	)
	stockHandlers := handlers.NewStockHandlers(authenticator, container.Services.Stock)
	couponHandlers := handlers.NewCouponHandlers(authenticator, container.Services.Catalog)
	taxHandlers := handlers.NewTaxRuleHandlers(authenticator, container.Services.Catalog)
	postHandlers := handlers.NewPostHandlers(authenticator, container.Services.Content)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, paymentsProvider)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(projectID),
			observability.MetricsMiddleware(metrics),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithStockRoutes(stockHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithTaxRoutes(taxHandlers.Routes),
		handlers.WithPostRoutes(postHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// zapEventLogger adapts the context-scoped zap logger to the event callback
// shape the services and collaborators accept.
func zapEventLogger() func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zFields = append(zFields, zap.Any(key, value))
		}
		observability.FromContext(ctx).Debug(event, zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.ToLower(strings.TrimSpace(env["API_ENVIRONMENT"]))
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// secretManagerCheck probes Secret Manager through a well-known reference.
// A NotFound answer proves connectivity, so the check passes.
func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const healthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secret_manager",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, healthReference)
			if err == nil || status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	projectMap := keyValuePairsFromEnv(env, "API_SECRET_PROJECT_IDS", strings.ToLower)
	versionPins := keyValuePairsFromEnv(env, "API_SECRET_VERSION_PINS", nil)
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config secret fields that must resolve to a
// non-empty value. Stripe credentials are required only when the deployment
// configures them at all.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Carrier.Password"}
	if env != nil {
		if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
			required = append(required, "PSP.StripeAPIKey")
		}
	}
	return required
}

// keyValuePairsFromEnv parses "k1=v1,k2=v2" style environment values.
func keyValuePairsFromEnv(env map[string]string, key string, normalizeKey func(string) string) map[string]string {
	out := make(map[string]string)
	if env == nil {
		return out
	}
	for _, entry := range strings.Split(env[key], ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		if normalizeKey != nil {
			name = normalizeKey(name)
		}
		value := strings.TrimSpace(parts[1])
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	return out
}
