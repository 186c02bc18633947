package gateway

import "sync"

// Credentials is the single credential set of the gateway. It starts empty,
// is written by the connect and refresh flows and may be read from any
// goroutine.
type Credentials struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	extra        string
}

func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Credentials) RefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken
}

// Extra is the last registration status payload, e.g. " 1,1".
func (c *Credentials) Extra() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.extra
}

func (c *Credentials) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

func (c *Credentials) setAccessToken(access string) {
	c.mu.Lock()
	c.accessToken = access
	c.mu.Unlock()
}

func (c *Credentials) setExtra(extra string) {
	c.mu.Lock()
	c.extra = extra
	c.mu.Unlock()
}
