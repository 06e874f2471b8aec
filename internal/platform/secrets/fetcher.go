package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	latestVersion       = "latest"
	metricNamespace     = "github.com/vibek01/ECOM-D1/internal/platform/secrets"
)

// ErrNotFound reports that neither Secret Manager nor the local fallback file holds the secret.
var ErrNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves secret:// references such as secret://jwt-signing-key?version=3 against Google Secret
// Manager. Values are cached for a bounded time. When Secret Manager is unreachable or the process lacks
// credentials, values come from a dotenv-style fallback file keyed by the upper-cased secret name
// (JWT_SIGNING_KEY, or JWT_SIGNING_KEY.3 for a pinned version).
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	now        func() time.Time

	env        string
	defaultPrj string
	projectMap map[string]string
	ttl        time.Duration

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cacheEntry

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	canonical string
	expiresAt time.Time
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type fetcherConfig struct {
	logger       *zap.Logger
	now          func() time.Time
	env          string
	defaultProj  string
	projectMap   map[string]string
	fallbackPath string
	ttl          time.Duration
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithEnvironment selects the environment key used to resolve per-environment project IDs.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject configures the project ID used when no environment-specific mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectMap = make(map[string]string, len(m))
		for env, project := range m {
			cfg.projectMap[strings.ToLower(strings.TrimSpace(env))] = strings.TrimSpace(project)
		}
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithCacheTTL bounds how long a resolved value is served from memory. Zero or negative caches forever.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		cfg.ttl = ttl
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal; the fetcher then serves the
// fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		now:          time.Now,
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		projectMap:   map[string]string{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	latency, err := cfg.meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("secrets: register latency metric: %w", err)
	}
	cacheHits, err := cfg.meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		return nil, fmt.Errorf("secrets: register cache hit metric: %w", err)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		now:          cfg.now,
		env:          cfg.env,
		defaultPrj:   cfg.defaultProj,
		projectMap:   cfg.projectMap,
		ttl:          cfg.ttl,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cacheEntry),
		latency:      latency,
		cacheHits:    cacheHits,
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret makes Fetcher usable as a config secret resolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the secret value for ref, consulting the cache, then Secret Manager, then the fallback file.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.cacheKey()

	if value, ok := f.lookupCache(key); ok {
		f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.Canonical))))
		f.recordLatency(ctx, start, "cache")
		return value, nil
	}

	if project := f.projectID(parsed); project != "" && f.client != nil {
		value, fetchErr := f.fetchRemote(ctx, project, parsed)
		if fetchErr == nil {
			f.storeCache(key, parsed.Canonical, value)
			f.recordLatency(ctx, start, "remote")
			return value, nil
		}
		if !isFallbackError(fetchErr) {
			f.recordLatency(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.Canonical), zap.Error(fetchErr))
	}

	value, err := f.lookupFallback(parsed)
	if err != nil {
		f.recordLatency(ctx, start, "error")
		return "", err
	}
	f.storeCache(key, parsed.Canonical, value)
	f.recordLatency(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops every cached version of ref so the next Resolve refetches it.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cache {
		if entry.canonical == parsed.Canonical {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) lookupCache(key string) (string, bool) {
	f.mu.RLock()
	entry, ok := f.cache[key]
	f.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !entry.expiresAt.IsZero() && !f.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) storeCache(key, canonical, value string) {
	entry := cacheEntry{value: value, canonical: canonical}
	if f.ttl > 0 {
		entry.expiresAt = f.now().Add(f.ttl)
	}
	f.mu.Lock()
	f.cache[key] = entry
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, projectID string, ref parsedReference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, ref.Secret, ref.version())
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) projectID(ref parsedReference) string {
	if ref.ProjectOverride != "" {
		return ref.ProjectOverride
	}
	if id := f.projectMap[f.env]; id != "" {
		return id
	}
	return f.defaultPrj
}

func (f *Fetcher) lookupFallback(ref parsedReference) (string, error) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		return "", f.fallbackErr
	}
	base := fallbackKey(ref.Secret)
	if ref.Version != "" {
		if value, ok := f.fallbackVals[base+"."+ref.Version]; ok {
			return value, nil
		}
	}
	if value, ok := f.fallbackVals[base]; ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Canonical)
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	absPath, err := filepath.Abs(f.fallbackPath)
	if err != nil {
		absPath = f.fallbackPath
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return
	}
	values, err := godotenv.Read(absPath)
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
		return
	}
	f.fallbackVals = values
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, source string) {
	elapsed := f.now().Sub(start)
	f.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("source", source)))
}

type parsedReference struct {
	Canonical       string
	Secret          string
	Version         string
	ProjectOverride string
}

func (r parsedReference) version() string {
	if r.Version == "" {
		return latestVersion
	}
	return r.Version
}

func (r parsedReference) cacheKey() string {
	return r.Canonical + "#" + r.version()
}

func parseReference(ref string) (parsedReference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return parsedReference{
		Canonical:       "secret://" + secret,
		Secret:          secret,
		Version:         strings.TrimSpace(query.Get("version")),
		ProjectOverride: strings.TrimSpace(query.Get("project")),
	}, nil
}

// fallbackKey turns a secret name into an environment-style key: jwt-signing-key becomes JWT_SIGNING_KEY.
func fallbackKey(secret string) string {
	replacer := strings.NewReplacer("-", "_", "/", "_", ".", "_")
	return strings.ToUpper(replacer.Replace(secret))
}

func maskReference(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
