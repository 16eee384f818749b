// Package auth turns bearer tokens into verified identities by asking the
// identity provider's userinfo endpoint.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingToken        = errors.New("authentication token is missing")
	ErrInvalidToken        = errors.New("invalid authentication token")
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")
	ErrAccessDenied        = errors.New("access denied")
)

// Identity is the caller as reported by the identity provider.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TokenFromHeader extracts the token from an "Authorization: Bearer <token>" value.
func TokenFromHeader(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMissingToken
	}
	return token, nil
}

// Resolver resolves tokens against a userinfo endpoint. It keeps no cache;
// every call reaches the provider.
type Resolver struct {
	userinfoURL string
	allowed     map[string]struct{}
	timeout     time.Duration
	client      *http.Client
}

// NewResolver creates a resolver. An empty allow-list admits every verified identity.
func NewResolver(userinfoURL string, allowedEmails []string, timeout time.Duration) *Resolver {
	allowed := make(map[string]struct{}, len(allowedEmails))
	for _, e := range allowedEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			allowed[e] = struct{}{}
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Resolver{
		userinfoURL: userinfoURL,
		allowed:     allowed,
		timeout:     timeout,
		client:      &http.Client{},
	}
}

// Resolve verifies token with the identity provider and applies the allow-list.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userinfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hpc-gateway")

	resp, err := r.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Identity{}, fmt.Errorf("%w: userinfo returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: userinfo returned %d", ErrInvalidToken, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var id Identity
	if err := json.Unmarshal(body, &id); err != nil {
		return Identity{}, fmt.Errorf("%w: malformed userinfo: %v", ErrInvalidToken, err)
	}
	id.Email = strings.TrimSpace(id.Email)
	id.Name = strings.TrimSpace(id.Name)
	if id.Email == "" || id.Name == "" {
		return Identity{}, fmt.Errorf("%w: userinfo lacks email or name", ErrInvalidToken)
	}

	if !r.Allowed(id.Email) {
		return Identity{}, fmt.Errorf("%w: %s is not on the allow-list", ErrAccessDenied, id.Email)
	}
	return id, nil
}

// Allowed reports whether email passes the allow-list. Comparison ignores case.
func (r *Resolver) Allowed(email string) bool {
	if len(r.allowed) == 0 {
		return true
	}
	_, ok := r.allowed[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
