package registry

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TokenStore maps opaque bearer tokens one-to-one to identities.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]string)}
}

// Register mints a token for a fresh identity and returns both.
func (t *TokenStore) Register() (token, userID string) {
	token = "sgk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	userID = uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[token] = userID
	return token, userID
}

// Lookup resolves a token to its identity.
func (t *TokenStore) Lookup(token string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	userID, ok := t.tokens[token]
	return userID, ok
}

// Revoke removes a token.
func (t *TokenStore) Revoke(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, token)
}
