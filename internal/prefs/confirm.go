package prefs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConfirmationTTL is how long a delete token stays valid.
const ConfirmationTTL = 5 * time.Minute

type pendingDelete struct {
	kind    string
	keys    []string
	expires time.Time
}

// confirmations issues single-use delete tokens.
type confirmations struct {
	mu      sync.Mutex
	now     func() time.Time
	pending map[string]pendingDelete
}

func newConfirmations(now func() time.Time) *confirmations {
	return &confirmations{now: now, pending: map[string]pendingDelete{}}
}

func (c *confirmations) issue(kind string, keys ...string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for tok, p := range c.pending {
		if now.After(p.expires) {
			delete(c.pending, tok)
		}
	}
	token := uuid.NewString()
	c.pending[token] = pendingDelete{kind: kind, keys: keys, expires: now.Add(ConfirmationTTL)}
	return token
}

func (c *confirmations) take(token, kind string) (pendingDelete, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok || p.kind != kind {
		return pendingDelete{}, ErrUnknownToken
	}
	delete(c.pending, token)
	if c.now().After(p.expires) {
		return pendingDelete{}, ErrUnknownToken
	}
	return p, nil
}
