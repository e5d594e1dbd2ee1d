package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/kaigo-note/api/internal/platform/httpx"
)

const bearerPrefix = "Bearer "

var (
	// ErrTokenMissing signals that the request carried no credentials.
	ErrTokenMissing = errors.New("auth: token missing")
	// ErrTokenInvalid signals that the presented token matched no client.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Authenticator validates static bearer tokens issued to API clients.
// Tokens map a client name to its secret; comparison is constant time.
type Authenticator struct {
	tokens map[string]string
}

// NewAuthenticator constructs an Authenticator from a name-to-token map.
func NewAuthenticator(tokens map[string]string) (*Authenticator, error) {
	if len(tokens) == 0 {
		return nil, errors.New("auth: at least one client token is required")
	}
	cleaned := make(map[string]string, len(tokens))
	for name, token := range tokens {
		name = strings.TrimSpace(name)
		token = strings.TrimSpace(token)
		if name == "" || token == "" {
			return nil, errors.New("auth: client name and token must be non-empty")
		}
		cleaned[name] = token
	}
	return &Authenticator{tokens: cleaned}, nil
}

// Authenticate resolves the identity for a presented token.
func (a *Authenticator) Authenticate(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMissing
	}
	for name, expected := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1 {
			return &Identity{Name: name}, nil
		}
	}
	return nil, ErrTokenInvalid
}

// Middleware enforces bearer-token authentication and injects the resolved
// identity into the request context.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(extractToken(r))
			if err != nil {
				status := http.StatusUnauthorized
				code := "unauthorized"
				message := "invalid or missing credentials"
				if errors.Is(err, ErrTokenMissing) {
					message = "authorization required"
				}
				httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Key"))
}
