package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken rejects missing or unverifiable credentials.
var ErrInvalidToken = errors.New("gateway: invalid token")

// Verifier maps a bearer token to an owner identifier. Identity is an
// external collaborator: the core trusts whatever owner the verifier
// returns and performs no further checks.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// StaticVerifier resolves tokens from a fixed token-to-owner table. It backs
// single-node deployments and tests.
type StaticVerifier struct {
	owners map[string]string
}

// NewStaticVerifier parses a comma-separated list of token:owner pairs.
func NewStaticVerifier(pairs string) (*StaticVerifier, error) {
	owners := make(map[string]string)
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, owner, ok := strings.Cut(pair, ":")
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("invalid token pair %q, want token:owner", pair)
		}
		owners[token] = owner
	}
	return &StaticVerifier{owners: owners}, nil
}

// Verify returns the owner bound to the token.
func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	owner, ok := v.owners[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return owner, nil
}

// RemoteVerifier introspects tokens against an external identity provider.
type RemoteVerifier struct {
	url    string
	client *http.Client
}

// NewRemoteVerifier creates a verifier that POSTs tokens to the given
// introspection endpoint. Calls are bounded by timeout.
func NewRemoteVerifier(url string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteVerifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Verify asks the identity provider who the token belongs to. Any non-200
// answer means the credentials are rejected.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", fmt.Errorf("failed to encode introspection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("introspection call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrInvalidToken
	}

	var result struct {
		Owner string `json:"owner"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode introspection response: %w", err)
	}
	if result.Owner == "" {
		return "", ErrInvalidToken
	}
	return result.Owner, nil
}
