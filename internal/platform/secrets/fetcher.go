package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	// RefScheme prefixes configuration values that should be fetched from
	// Secret Manager instead of being used literally.
	RefScheme = "sm://"

	defaultVersion  = "latest"
	defaultCacheTTL = 5 * time.Minute
)

var (
	// ErrInvalidReference signals a malformed sm:// reference.
	ErrInvalidReference = errors.New("secrets: invalid reference")
	// ErrProjectRequired signals that no project could be derived for a short reference.
	ErrProjectRequired = errors.New("secrets: project id is required")
)

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves sm:// references against Google Secret Manager with a
// short-lived in-process cache.
type Fetcher struct {
	client    secretManagerClient
	projectID string
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Option customises Fetcher behaviour.
type Option func(*Fetcher)

// WithLogger attaches a logger used for resolution failures.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithCacheTTL overrides how long resolved values are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.cacheTTL = ttl
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) Option {
	return func(f *Fetcher) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithClient injects a pre-built client, bypassing the default factory.
func WithClient(client secretManagerClient) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewFetcher constructs a Fetcher bound to one default project.
func NewFetcher(ctx context.Context, projectID string, opts ...Option) (*Fetcher, error) {
	fetcher := &Fetcher{
		projectID: strings.TrimSpace(projectID),
		logger:    zap.NewNop(),
		cacheTTL:  defaultCacheTTL,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(fetcher)
		}
	}
	if fetcher.client == nil {
		client, err := clientFactory(ctx)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		fetcher.client = client
	}
	return fetcher, nil
}

// Close releases the underlying client.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// IsReference reports whether the value is an sm:// reference.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), RefScheme)
}

// Resolve returns the literal value unchanged, or fetches and caches the
// referenced secret version when the value carries the sm:// scheme.
func (f *Fetcher) Resolve(ctx context.Context, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	name, err := f.versionName(value)
	if err != nil {
		return "", err
	}

	if cached, ok := f.lookup(name); ok {
		return cached, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		f.logger.Warn("secret resolution failed", zap.String("secret", name), zap.Error(err))
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	secret := string(resp.GetPayload().GetData())
	f.store(name, secret)
	return secret, nil
}

// versionName expands "sm://name", "sm://name@version" and fully qualified
// "sm://projects/p/secrets/name/versions/v" forms.
func (f *Fetcher) versionName(ref string) (string, error) {
	body := strings.TrimPrefix(strings.TrimSpace(ref), RefScheme)
	if body == "" {
		return "", ErrInvalidReference
	}
	if strings.HasPrefix(body, "projects/") {
		if !strings.Contains(body, "/versions/") {
			body += "/versions/" + defaultVersion
		}
		return body, nil
	}

	name := body
	version := defaultVersion
	if at := strings.LastIndex(body, "@"); at >= 0 {
		name = body[:at]
		version = body[at+1:]
	}
	if name == "" || version == "" || strings.ContainsAny(name, "/ ") {
		return "", ErrInvalidReference
	}
	if f.projectID == "" {
		return "", ErrProjectRequired
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), nil
}

func (f *Fetcher) lookup(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[name]
	if !ok || f.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[name] = cacheEntry{value: value, expiresAt: f.now().Add(f.cacheTTL)}
}
