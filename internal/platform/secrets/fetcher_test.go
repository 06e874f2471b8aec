package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const jwtResource = "projects/test/secrets/jwt-signing-key/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values[jwtResource] = "remote-secret"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://jwt-signing-key")
		if err != nil {
			t.Fatalf("Resolve call %d returned error: %v", i, err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}

	if calls := client.callCount(jwtResource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values[jwtResource] = "v1"

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://jwt-signing-key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	client.set(jwtResource, "v2")
	now = now.Add(2 * time.Minute)

	got, err := fetcher.Resolve(ctx, "secret://jwt-signing-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected refreshed value v2, got %s", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values[jwtResource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://jwt-signing-key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	fetcher.Invalidate("secret://jwt-signing-key")
	if _, err := fetcher.Resolve(ctx, "secret://jwt-signing-key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if calls := client.callCount(jwtResource); calls != 2 {
		t.Fatalf("expected two remote fetches, got %d", calls)
	}
}

func TestResolvePinnedVersionAndProjectOverride(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	pinned := "projects/other/secrets/jwt-signing-key/versions/5"
	client.values[pinned] = "version-5"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://jwt-signing-key?version=5&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "version-5" {
		t.Fatalf("expected version-5, got %s", got)
	}
}

func TestResolveUsesEnvironmentProject(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values["projects/shop-prod/secrets/redis-password/versions/latest"] = "prod-pass"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithEnvironment("PROD"),
		WithDefaultProject("test"),
		WithProjectMap(map[string]string{"prod": "shop-prod"}),
	)
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	got, err := fetcher.ResolveSecret(ctx, "sm://redis-password")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "prod-pass" {
		t.Fatalf("expected prod-pass, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "JWT_SIGNING_KEY=local-secret\nJWT_SIGNING_KEY.2=local-v2\n")

	client := newFakeSecretClient()
	client.errors[jwtResource] = status.Error(codes.PermissionDenied, "denied")
	client.errors["projects/test/secrets/jwt-signing-key/versions/2"] = status.Error(codes.Unavailable, "down")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://jwt-signing-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected fallback secret local-secret, got %s", got)
	}

	got, err = fetcher.Resolve(ctx, "secret://jwt-signing-key?version=2")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-v2" {
		t.Fatalf("expected versioned fallback local-v2, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "JWT_SIGNING_KEY=local-secret\n")

	client := newFakeSecretClient()
	client.errors[jwtResource] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://jwt-signing-key"); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = originalFactory
	})

	fallbackPath := writeFallbackFile(t, "REDIS_PASSWORD=local-pass\n")

	fetcher, err := NewFetcher(ctx, WithDefaultProject("test"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(ctx, "secret://redis-password")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "local-pass" {
		t.Fatalf("expected local secret, got %s", value)
	}

	if _, err := fetcher.Resolve(ctx, "secret://unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseReferenceRejectsInvalidInput(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/key", "secret://"} {
		if _, err := parseReference(ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

func writeFallbackFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
