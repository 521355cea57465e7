// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ClientType distinguishes clients that can keep a secret from those that
// cannot.
type ClientType string

// Client types. Public clients authenticate token exchanges with PKCE
// instead of a secret.
const (
	ClientPublic       ClientType = "public"
	ClientConfidential ClientType = "confidential"
)

// GrantType enumerates the token-endpoint grants. Dispatch over grant types
// is an exhaustive switch so adding one is a compile-visible change.
type GrantType string

// Supported grant types.
const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
)

// ErrClientNotFound is returned by client stores for unknown client IDs.
var ErrClientNotFound = errors.New("oauth client not found")

// Client is a registered OAuth client.
type Client struct {
	ID string

	// SecretHash is the bcrypt hash of the client secret. Empty for
	// public clients.
	SecretHash string

	Type ClientType

	// RedirectURIs are matched exactly, never by prefix.
	RedirectURIs []string

	AllowedScopes []string
	GrantTypes    []GrantType

	// RequiresConsent forces an explicit consent step before a code is
	// issued. First-party clients may skip it.
	RequiresConsent bool
}

// MatchRedirectURI reports whether uri exactly matches a registered
// redirect URI.
func (c *Client) MatchRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIs, uri)
}

// ScopesAllowed reports whether every requested scope is in the client's
// allowed set.
func (c *Client) ScopesAllowed(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(c.AllowedScopes, s) {
			return false
		}
	}
	return true
}

// AllowsGrant reports whether the client is registered for the grant type.
func (c *Client) AllowsGrant(gt GrantType) bool {
	return slices.Contains(c.GrantTypes, gt)
}

// Authenticate verifies a presented client secret against the stored hash.
// Public clients have no secret and always fail.
func (c *Client) Authenticate(secret string) error {
	if c.SecretHash == "" {
		return errors.New("client has no secret")
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret))
}

// HashClientSecret hashes a client secret for storage.
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ClientStore looks up registered clients.
type ClientStore interface {
	// GetClient returns the client with the given ID, or ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// MemoryClientStore is an in-memory client registry, populated from static
// configuration at startup.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

var _ ClientStore = (*MemoryClientStore)(nil)

// NewMemoryClientStore creates an empty client registry.
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: make(map[string]*Client)}
}

// Register adds or replaces a client.
func (s *MemoryClientStore) Register(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

// GetClient implements ClientStore.
func (s *MemoryClientStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// Len returns the number of registered clients.
func (s *MemoryClientStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
