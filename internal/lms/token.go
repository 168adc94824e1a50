package lms

import (
	"context"
	"sync"
	"time"
)

// expirySkew refreshes a token slightly before the LMS would reject it.
const expirySkew = 10 * time.Second

type Token struct {
	Value  string
	Expiry time.Time // zero means the LMS did not report an expiry
}

func (t Token) usableAt(now time.Time) bool {
	if t.Value == "" {
		return false
	}
	return t.Expiry.IsZero() || now.Add(expirySkew).Before(t.Expiry)
}

// FetchFunc negotiates a fresh token with the LMS.
type FetchFunc func(ctx context.Context) (Token, error)

type tokenState int

const (
	stateNoToken tokenState = iota
	stateValid
	stateRefreshing
)

type refresh struct {
	done chan struct{}
	err  error
}

// TokenCache holds the access token of one template.
// States: NoToken -> Refreshing -> Valid | NoToken; Valid -> NoToken on
// expiry or Invalidate. Only one refresh runs at a time; concurrent callers
// wait for its outcome and start their own when the refresh was cancelled by
// the request that ran it.
type TokenCache struct {
	fetch FetchFunc
	now   func() time.Time

	mu        sync.Mutex
	state     tokenState
	tok       Token
	inflight  *refresh
	refreshes int
}

func NewTokenCache(fetch FetchFunc) *TokenCache {
	return &TokenCache{fetch: fetch, now: time.Now}
}

// Seed installs a token obtained out of band, e.g. one persisted with the setup.
func (c *TokenCache) Seed(t Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateRefreshing || t.Value == "" {
		return
	}
	c.tok = t
	c.state = stateValid
}

// Token returns a usable token, negotiating one if necessary.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case stateValid:
			if c.tok.usableAt(c.now()) {
				v := c.tok.Value
				c.mu.Unlock()
				return v, nil
			}
			c.state, c.tok = stateNoToken, Token{}
		case stateRefreshing:
			r := c.inflight
			c.mu.Unlock()
			select {
			case <-r.done:
				// a refresh abandoned by its own caller says nothing
				// about this request; try again with our context
				if r.err != nil && !(IsCanceled(r.err) && ctx.Err() == nil) {
					return "", r.err
				}
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		r := &refresh{done: make(chan struct{})}
		c.state, c.inflight = stateRefreshing, r
		c.mu.Unlock()

		tok, err := c.fetch(ctx)

		c.mu.Lock()
		c.refreshes++
		c.inflight = nil
		if err != nil {
			c.state, c.tok = stateNoToken, Token{}
		} else {
			c.state, c.tok = stateValid, tok
		}
		r.err = err
		close(r.done)
		c.mu.Unlock()

		if err != nil {
			return "", err
		}
		return tok.Value, nil
	}
}

// Invalidate drops the cached token only if it is still the rejected one, so
// concurrent rejections of the same token trigger a single refresh.
func (c *TokenCache) Invalidate(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateValid && c.tok.Value == rejected {
		c.state, c.tok = stateNoToken, Token{}
	}
}

// Refreshes reports how many token negotiations were run.
func (c *TokenCache) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// Authorized runs call with the cached token. If the LMS rejects it with an
// authorization error the token is refreshed once and call retried once; a
// second rejection is returned as is.
func (c *TokenCache) Authorized(ctx context.Context, call func(ctx context.Context, token string) error) error {
	tok, err := c.Token(ctx)
	if err != nil {
		return err
	}
	err = call(ctx, tok)
	if !IsKind(err, KindAuthorization) {
		return err
	}
	c.Invalidate(tok)
	tok, err = c.Token(ctx)
	if err != nil {
		return err
	}
	return call(ctx, tok)
}
