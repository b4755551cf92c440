package kalshi

import (
	"context"
	"sync"
	"time"
)

const (
	// tokenValidity is how long an issued token is reused before the next
	// login, regardless of any server-side session lifetime.
	tokenValidity = 23 * time.Hour

	// expiryBuffer is subtracted from the token deadline when deciding
	// whether to log in again.
	expiryBuffer = 60 * time.Second
)

// session is an authenticated Kalshi session: the bearer token plus the
// member it was issued to.
type session struct {
	Token    string
	MemberID string
}

// loginFunc performs a credential login and returns a fresh session.
type loginFunc func(ctx context.Context) (session, error)

// TokenCache hands out a valid bearer token, logging in only when the cached
// one is missing or within expiryBuffer of its deadline. The lock is held
// across the expiry check and the login itself, so concurrent callers share
// a single in-flight login.
type TokenCache struct {
	mu    sync.Mutex
	login loginFunc
	now   func() time.Time

	token     string
	memberID  string
	expiresAt time.Time
}

// NewTokenCache creates a token cache around the given login function.
func NewTokenCache(login loginFunc) *TokenCache {
	return &TokenCache{
		login: login,
		now:   time.Now,
	}
}

// Acquire returns a bearer token, logging in first if no still-valid token
// is cached. A failed login leaves the cache empty and is reported to the
// caller; it is not retried here.
func (t *TokenCache) Acquire(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt.Add(-expiryBuffer)) {
		return t.token, nil
	}

	sess, err := t.login(ctx)
	if err != nil {
		t.token = ""
		t.expiresAt = time.Time{}
		return "", err
	}

	t.token = sess.Token
	t.memberID = sess.MemberID
	t.expiresAt = t.now().Add(tokenValidity)

	return t.token, nil
}

// Invalidate drops the cached token unconditionally. The next Acquire logs
// in again.
func (t *TokenCache) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token = ""
	t.expiresAt = time.Time{}
}

// MemberID returns the member id from the most recent login, or "" when no
// login has succeeded yet.
func (t *TokenCache) MemberID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.memberID
}
