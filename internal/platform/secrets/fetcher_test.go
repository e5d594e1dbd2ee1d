package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

type fakeSecretClient struct {
	values map[string]string
	calls  int
	err    error
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func newTestFetcher(t *testing.T, client *fakeSecretClient, opts ...Option) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(context.Background(), "demo-project", append([]Option{WithClient(client)}, opts...)...)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return fetcher
}

func TestResolvePassesThroughLiterals(t *testing.T) {
	fetcher := newTestFetcher(t, &fakeSecretClient{})
	got, err := fetcher.Resolve(context.Background(), "plain-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "plain-token" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveShortReference(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/demo-project/secrets/api-token/versions/latest": "s3cret",
	}}
	fetcher := newTestFetcher(t, client)

	got, err := fetcher.Resolve(context.Background(), "sm://api-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("got %q", got)
	}
}

func TestResolvePinnedVersion(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/demo-project/secrets/api-token/versions/3": "v3",
	}}
	fetcher := newTestFetcher(t, client)

	got, err := fetcher.Resolve(context.Background(), "sm://api-token@3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "v3" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveFullyQualifiedReference(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/other/secrets/token/versions/latest": "cross-project",
	}}
	fetcher := newTestFetcher(t, client)

	got, err := fetcher.Resolve(context.Background(), "sm://projects/other/secrets/token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "cross-project" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveCaches(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/demo-project/secrets/api-token/versions/latest": "s3cret",
	}}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	fetcher := newTestFetcher(t, client, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if _, err := fetcher.Resolve(context.Background(), "sm://api-token"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if client.calls != 1 {
		t.Fatalf("client calls = %d, want 1", client.calls)
	}

	now = now.Add(10 * time.Minute)
	if _, err := fetcher.Resolve(context.Background(), "sm://api-token"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("client calls after expiry = %d, want 2", client.calls)
	}
}

func TestResolveInvalidReference(t *testing.T) {
	fetcher := newTestFetcher(t, &fakeSecretClient{})
	for _, ref := range []string{"sm://", "sm://a b", "sm://name@"} {
		if _, err := fetcher.Resolve(context.Background(), ref); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("Resolve(%q) err = %v, want ErrInvalidReference", ref, err)
		}
	}
}
