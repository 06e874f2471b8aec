package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/vibek01/ECOM-D1/internal/di"
	"github.com/vibek01/ECOM-D1/internal/platform/config"
	"github.com/vibek01/ECOM-D1/internal/platform/observability"
	"github.com/vibek01/ECOM-D1/internal/platform/secrets"
	"github.com/vibek01/ECOM-D1/internal/services"
)

func main() {
	ctx := context.Background()
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

	buildInfo := buildInfoFromConfig(cfg, startedAt)

	telemetry, err := observability.SetupTelemetry(ctx, cfg.Telemetry, buildInfo.Version)
	if err != nil {
		logger.Fatal("failed to initialise telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	container, err := di.NewContainer(ctx, cfg, logger, di.WithBuildInfo(buildInfo))
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup
	backgroundWG.Add(1)
	go func() {
		defer backgroundWG.Done()
		container.RunBackground(backgroundCtx)
	}()

	var metrics http.Handler
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.MetricsHandler()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router(metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("store", cfg.Store),
		zap.String("events", cfg.Events.Backend),
	)
	go func() {
		serverLogger.Info("ecom api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromConfig(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(cfg.App.Version)
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(cfg.App.CommitSHA)
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.App.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
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

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if projects := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames marks the JWT signing key as mandatory whenever tokens are verified locally.
func requiredSecretNames(env map[string]string) []string {
	mode := strings.ToLower(strings.TrimSpace(env["API_AUTH_MODE"]))
	if mode == "" || mode == config.AuthModeJWT {
		return []string{"Auth.JWTSecret"}
	}
	return nil
}

// parseKeyValueList parses "a=b,c=d" lists; malformed entries are skipped.
func parseKeyValueList(raw string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
