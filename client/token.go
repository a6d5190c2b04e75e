package client

import "sync"

// TokenHolder is the in-memory home of the current access token.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *TokenHolder) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *TokenHolder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

func (h *TokenHolder) Clear() {
	h.Set("")
}

// ClearIf drops the token only if it is still token. It reports whether it
// did, so a session end is signalled once per token.
func (h *TokenHolder) ClearIf(token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if token == "" || h.token != token {
		return false
	}
	h.token = ""
	return true
}
