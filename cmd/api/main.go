// Package main is the entry point for the proofwork entitlement API.
//
// It loads configuration, opens the database pool, builds the AWS and
// upstream clients, wires the billing pipeline into the core chassis and
// serves it. Inside AWS Lambda the router is driven by API Gateway HTTP API
// events; everywhere else it runs as a plain HTTP server with graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"proofwork/internal/api/handlers"
	"proofwork/internal/billing"
	"proofwork/internal/config"
	"proofwork/internal/core"
	"proofwork/internal/db"
	"proofwork/internal/external"
	"proofwork/internal/queue"
	"proofwork/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// database is what the repositories and the health probe need from a pool.
type database interface {
	db.DBTX
	db.Pinger
}

// dependencies are the process-level resources the server is built from.
// Tests substitute fakes for each of them.
type dependencies struct {
	DB         database
	SQS        queue.SQSSender
	CloudWatch billing.CloudWatchClient
	HTTPClient *http.Client
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("entitlement API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return err
	}

	deps := dependencies{
		DB:         pool,
		SQS:        sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = endpoint(cfg.AWS) }),
		CloudWatch: cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) { o.BaseEndpoint = endpoint(cfg.AWS) }),
		HTTPClient: &http.Client{},
	}

	srv, err := buildServer(cfg, logger, deps)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.OnShutdown(pool.Close)

	if isLambdaEnvironment() {
		logger.Info("running in Lambda mode")
		lambda.Start(core.NewLambdaHandler(srv.Handler()).Handle)
		return nil
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer assembles the billing pipeline and registers every route group.
func buildServer(cfg *config.Config, logger *slog.Logger, deps dependencies) (*core.Server, error) {
	planEntries, err := cfg.Billing.PlanEntries()
	if err != nil {
		return nil, err
	}
	plans, err := billing.NewPlanMap(planEntries)
	if err != nil {
		return nil, err
	}
	tiers := billing.NewStaticTierRegistry()

	entitlements := db.NewEntitlementRepo(deps.DB, logger)
	usage := db.NewUsageRepo(deps.DB)

	var metrics billing.ReconcileMetrics = billing.NoopMetrics{}
	if cfg.Observability.EnableCloudWatch && deps.CloudWatch != nil {
		metrics = billing.NewCloudWatchMetrics(deps.CloudWatch, cfg.Observability.MetricNamespace, logger)
	}

	var publisher types.EntitlementPublisher
	if deps.SQS != nil {
		publisher = queue.NewEntitlementPublisher(deps.SQS, cfg.AWS, logger)
	}

	reconciler := billing.NewReconciler(entitlements, plans, publisher, metrics, logger)
	enforcer := billing.NewEnforcer(entitlements, usage, tiers, types.RealClock{})

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	identity := external.NewIdentityClient(withTimeout(httpClient, cfg.Identity.Timeout), external.IdentityConfig{
		BaseURL: cfg.Identity.URL,
		APIKey:  cfg.Identity.APIKey,
		Logger:  logger,
	})
	checkout := external.NewLemonSqueezyClient(withTimeout(httpClient, cfg.Billing.Timeout), external.LemonSqueezyConfig{
		APIKey:       cfg.Billing.APIKey,
		StoreID:      cfg.Billing.StoreID,
		DashboardURL: cfg.Server.DashboardURL,
		BaseURL:      cfg.Billing.APIBaseURL,
		Logger:       logger,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Authenticator = identity
	srv.Metrics = core.NewHTTPMetrics("proofwork")
	srv.HealthProbes = append(srv.HealthProbes, db.NewHealthProbe(deps.DB))

	webhookHandler := handlers.NewWebhookHandler(
		billing.NewHMACVerifier(cfg.Billing.WebhookSecret),
		reconciler,
		cfg.Server.MaxWebhookBodyBytes,
		logger,
	)
	checkoutHandler := handlers.NewCheckoutHandler(checkout, plans, srv.Validator, logger)
	entitlementHandler := handlers.NewEntitlementHandler(enforcer, tiers, srv.Validator, logger)
	adminHandler := handlers.NewAdminHandler(reconciler, logger)

	srv.WebhookRoutes = append(srv.WebhookRoutes, webhookHandler.RegisterRoutes)
	srv.PublicV1Routes = append(srv.PublicV1Routes, entitlementHandler.RegisterPublicRoutes)
	srv.V1Routes = append(srv.V1Routes, checkoutHandler.RegisterRoutes, entitlementHandler.RegisterRoutes)
	srv.AdminRoutes = append(srv.AdminRoutes, adminHandler.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// withTimeout returns a shallow copy of c bounded by d. The transport is
// shared.
func withTimeout(c *http.Client, d time.Duration) *http.Client {
	cp := *c
	if d > 0 {
		cp.Timeout = d
	}
	return &cp
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// endpoint returns the LocalStack override, or nil for the SDK default.
func endpoint(cfg config.AWSConfig) *string {
	if cfg.EndpointURL == "" {
		return nil
	}
	return aws.String(cfg.EndpointURL)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
