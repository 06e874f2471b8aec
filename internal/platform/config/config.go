package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultServiceName          = "ecom-api"
	defaultTxAttempts           = 1
	defaultTxTimeout            = 15 * time.Second
	defaultAuthCookie           = "accessToken"
	defaultRateLimitDefault     = 120
	defaultRateLimitAuth        = 240
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultKafkaTopic           = "orders.events"
)

// Storage backends.
const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Authentication modes.
const (
	AuthModeJWT      = "jwt"
	AuthModeFirebase = "firebase"
)

// Event transports.
const (
	EventsBackendNone   = "none"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

// Idempotency stores.
const (
	IdempotencyBackendMemory    = "memory"
	IdempotencyBackendRedis     = "redis"
	IdempotencyBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Store       string
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Auth        AuthConfig
	Events      EventsConfig
	Redis       RedisConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
}

// AppConfig describes the running build.
type AppConfig struct {
	Environment string
	Version     string
	CommitSHA   string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters. TxAttempts bounds how often the client runs a
// transaction closure; the default of one disables automatic retries.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
	TxTimeout    time.Duration
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Mode       string
	JWTSecret  string
	JWTIssuer  string
	CookieName string
}

// EventsConfig selects the transport for order domain events.
type EventsConfig struct {
	Backend      string
	PubSubTopic  string
	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig points at the Redis instance used for idempotency records.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// TelemetryConfig controls metric and trace export.
type TelemetryConfig struct {
	ServiceName    string
	OTLPEndpoint   string
	MetricsEnabled bool
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers use it to initialise the secret fetcher
// before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "Auth.JWTSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		App: AppConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
			Version:     stringWithDefault(lookup, "API_VERSION", ""),
			CommitSHA:   stringWithDefault(lookup, "API_COMMIT_SHA", ""),
		},
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: strings.ToLower(stringWithDefault(lookup, "API_STORE", StoreFirestore)),
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", "")),
			TxAttempts:   intWithDefault(lookup, "API_FIRESTORE_TX_ATTEMPTS", defaultTxAttempts),
			TxTimeout:    durationWithDefault(lookup, "API_FIRESTORE_TX_TIMEOUT", defaultTxTimeout),
		},
		Auth: AuthConfig{
			Mode:       strings.ToLower(stringWithDefault(lookup, "API_AUTH_MODE", AuthModeJWT)),
			JWTSecret:  stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			JWTIssuer:  stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", ""),
			CookieName: stringWithDefault(lookup, "API_AUTH_COOKIE_NAME", defaultAuthCookie),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", EventsBackendNone)),
			PubSubTopic:  stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			KafkaBrokers: csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", defaultKafkaTopic),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       intWithDefault(lookup, "API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			AuthenticatedPerMinute: intWithDefault(lookup, "API_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuth),
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_IDEMPOTENCY_BACKEND", IdempotencyBackendMemory)),
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    stringWithDefault(lookup, "API_TELEMETRY_SERVICE_NAME", defaultServiceName),
			OTLPEndpoint:   stringWithDefault(lookup, "API_TELEMETRY_OTLP_ENDPOINT", ""),
			MetricsEnabled: boolWithDefault(lookup, "API_TELEMETRY_METRICS_ENABLED", true),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Store {
	case StoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreMemory:
	default:
		missing = append(missing, "Store")
	}
	if cfg.Firestore.TxAttempts < 1 {
		missing = append(missing, "Firestore.TxAttempts")
	}
	if cfg.Firestore.TxTimeout <= 0 {
		missing = append(missing, "Firestore.TxTimeout")
	}

	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			missing = append(missing, "Auth.JWTSecret")
		}
	case AuthModeFirebase:
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	default:
		missing = append(missing, "Auth.Mode")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if cfg.Events.PubSubTopic == "" {
			missing = append(missing, "Events.PubSubTopic")
		}
		if cfg.Firebase.ProjectID == "" && cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	case EventsBackendKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if cfg.Events.KafkaTopic == "" {
			missing = append(missing, "Events.KafkaTopic")
		}
	default:
		missing = append(missing, "Events.Backend")
	}

	switch cfg.Idempotency.Backend {
	case IdempotencyBackendMemory:
	case IdempotencyBackendRedis:
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	case IdempotencyBackendFirestore:
		if cfg.Store != StoreFirestore {
			missing = append(missing, "Idempotency.Backend")
		}
	default:
		missing = append(missing, "Idempotency.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
