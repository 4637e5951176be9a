package rest

import "sync"

// TokenSource resolves a request signature to a precomputed bypass token. A
// matching token routes the request to the production base URL; absence routes
// to the local base URL for server-side signature resolution. This is transport
// routing, orthogonal to caching.
type TokenSource interface {
	Token(signature string) (string, bool)
}

// TokenTable is a swappable in-memory TokenSource fed by the config loader and
// replaced wholesale when the watched token documents change.
type TokenTable struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewTokenTable seeds the table; a nil map yields an empty table.
func NewTokenTable(tokens map[string]string) *TokenTable {
	table := &TokenTable{}
	table.Replace(tokens)
	return table
}

// Token implements TokenSource.
func (t *TokenTable) Token(signature string) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	token, ok := t.tokens[signature]
	return token, ok
}

// Replace swaps the entire table, typically from a TokenBundle reload.
func (t *TokenTable) Replace(tokens map[string]string) {
	next := make(map[string]string, len(tokens))
	for signature, token := range tokens {
		next[signature] = token
	}
	t.mu.Lock()
	t.tokens = next
	t.mu.Unlock()
}

// Len reports the number of known signatures, for health reporting.
func (t *TokenTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tokens)
}
