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

const courierResource = "projects/matica/secrets/courier-token/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[courierResource] = "remote-token"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("matica"), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://courier-token")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "remote-token" {
			t.Fatalf("expected remote-token, got %s", got)
		}
	}
	if calls := client.callCount(courierResource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[courierResource] = "v1"

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("matica"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://courier-token"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	client.setValue(courierResource, "v2")
	now = now.Add(2 * time.Minute)

	got, err := fetcher.Resolve(ctx, "secret://courier-token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected refreshed value v2, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	fallbackPath := writeFallback(t, "sm://courier-token=local-token\n")

	client := newFakeSecretClient()
	client.errors[courierResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("matica"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://courier-token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-token" {
		t.Fatalf("expected fallback local-token, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	fallbackPath := writeFallback(t, "secret://courier-token=local-token\n")

	client := newFakeSecretClient()
	client.errors[courierResource] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("matica"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://courier-token"); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}

func TestResolveHonoursVersionAndProjectQuery(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/shared/secrets/session-key/versions/7"
	client.values[resource] = "pinned"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("matica"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://session-key?version=7&project=shared")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned, got %s", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[courierResource] = "remote-token"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("matica"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	_, _ = fetcher.Resolve(ctx, "secret://courier-token")
	fetcher.Invalidate("secret://courier-token")
	_, _ = fetcher.Resolve(ctx, "secret://courier-token")

	if calls := client.callCount(courierResource); calls != 2 {
		t.Fatalf("expected two fetches after invalidation, got %d", calls)
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = original })

	fallbackPath := writeFallback(t, "# local dev\nsecret://courier-token=local-token\n")
	fetcher, err := NewFetcher(ctx, WithProject("matica"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.ResolveSecret(ctx, "secret://courier-token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "local-token" {
		t.Fatalf("expected local-token, got %s", value)
	}
}

func TestResolveRejectsUnsupportedScheme(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "vault://courier"); err == nil {
		t.Fatal("expected scheme error")
	}
}

func writeFallback(t *testing.T, content string) string {
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
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) setValue(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
