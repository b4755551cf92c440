package kalshi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTokenCacheReusesToken(t *testing.T) {
	var logins int
	tc := NewTokenCache(func(ctx context.Context) (session, error) {
		logins++
		return session{Token: fmt.Sprintf("tok-%d", logins), MemberID: "mem-1"}, nil
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tc.now = func() time.Time { return now }

	tok, err := tc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("first token = %q, want tok-1", tok)
	}

	// Just outside the refresh buffer: still cached.
	now = now.Add(tokenValidity - expiryBuffer - time.Second)

	tok, err = tc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("second token = %q, want cached tok-1", tok)
	}
	if logins != 1 {
		t.Fatalf("logins = %d, want 1", logins)
	}
	if got := tc.MemberID(); got != "mem-1" {
		t.Fatalf("member id = %q, want mem-1", got)
	}
}

func TestTokenCacheRefreshesNearExpiry(t *testing.T) {
	var logins int
	tc := NewTokenCache(func(ctx context.Context) (session, error) {
		logins++
		return session{Token: fmt.Sprintf("tok-%d", logins)}, nil
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tc.now = func() time.Time { return now }

	if _, err := tc.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Inside the refresh buffer: a new login is required.
	now = now.Add(tokenValidity - 30*time.Second)

	tok, err := tc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if tok != "tok-2" {
		t.Fatalf("token = %q, want refreshed tok-2", tok)
	}
	if logins != 2 {
		t.Fatalf("logins = %d, want 2", logins)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	var logins int
	tc := NewTokenCache(func(ctx context.Context) (session, error) {
		logins++
		return session{Token: fmt.Sprintf("tok-%d", logins)}, nil
	})

	if _, err := tc.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	tc.Invalidate()

	tok, err := tc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after invalidate: %v", err)
	}
	if tok != "tok-2" {
		t.Fatalf("token = %q, want fresh tok-2", tok)
	}
	if logins != 2 {
		t.Fatalf("logins = %d, want 2", logins)
	}
}

func TestTokenCacheLoginFailure(t *testing.T) {
	loginErr := errors.New("bad credentials")
	fail := true
	tc := NewTokenCache(func(ctx context.Context) (session, error) {
		if fail {
			return session{}, loginErr
		}
		return session{Token: "tok-ok"}, nil
	})

	if _, err := tc.Acquire(context.Background()); !errors.Is(err, loginErr) {
		t.Fatalf("acquire error = %v, want %v", err, loginErr)
	}

	// A failed login leaves nothing cached; the next acquire tries again.
	fail = false
	tok, err := tc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after recovery: %v", err)
	}
	if tok != "tok-ok" {
		t.Fatalf("token = %q, want tok-ok", tok)
	}
}

func TestTokenCacheSingleFlightLogin(t *testing.T) {
	var logins int
	tc := NewTokenCache(func(ctx context.Context) (session, error) {
		logins++
		time.Sleep(20 * time.Millisecond)
		return session{Token: "tok-shared"}, nil
	})

	const workers = 8

	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tc.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if tokens[i] != "tok-shared" {
			t.Fatalf("worker %d token = %q, want tok-shared", i, tokens[i])
		}
	}
	if logins != 1 {
		t.Fatalf("logins = %d, want a single in-flight login", logins)
	}
}
