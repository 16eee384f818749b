package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/gateway"
	"hpcgateway/pkg/api"
)

func rateMw(perSecond float64, burst int) func(http.Handler) http.Handler {
	return NewRateLimiter(WithLimit(perSecond, burst), WithTTL(5*time.Minute)).Middleware()
}

func identityCtx(email string) context.Context {
	return NewContextWithIdentity(context.Background(), auth.Identity{Email: email, Name: email})
}

func TestRateLimitMiddleware_NoIdentityInContext(t *testing.T) {
	middleware := rateMw(1, 1)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called when no identity in context")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	middleware := rateMw(1, 1)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ctx := identityCtx("a@b.c")

	// First request should succeed (uses the burst)
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	if rr1.Code != http.StatusOK {
		t.Errorf("first request: got status %d, want %d", rr1.Code, http.StatusOK)
	}

	// Second request should be rate limited (burst exhausted)
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	if rr2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", rr2.Code, http.StatusTooManyRequests)
	}
	if got := rr2.Header().Get("Retry-After"); got != "1" {
		t.Errorf("got Retry-After %q, want %q", got, "1")
	}
	if ct := rr2.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("got Content-Type %q, want application/json", ct)
	}

	var body api.ErrorResponse
	if err := json.NewDecoder(rr2.Body).Decode(&body); err != nil {
		t.Fatalf("rate limit body is not JSON: %v", err)
	}
	if body.Error != string(gateway.CodeRateLimited) {
		t.Errorf("got error code %q, want %q", body.Error, gateway.CodeRateLimited)
	}
	if body.Message == "" {
		t.Error("expected a message in the rate limit body")
	}
	if body.Data != nil {
		t.Errorf("expected null data, got %v", body.Data)
	}
}

func TestRateLimitMiddleware_IndependentLimitsPerCaller(t *testing.T) {
	middleware := rateMw(1, 1)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ctxA := identityCtx("a@b.c")
	ctxB := identityCtx("b@b.c")

	// Exhaust caller A's limit
	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctxA))
	}

	rrA := httptest.NewRecorder()
	handler.ServeHTTP(rrA, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctxA))
	if rrA.Code != http.StatusTooManyRequests {
		t.Errorf("caller A: got status %d, want %d", rrA.Code, http.StatusTooManyRequests)
	}

	// Caller B should still be able to make requests
	rrB := httptest.NewRecorder()
	handler.ServeHTTP(rrB, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctxB))
	if rrB.Code != http.StatusOK {
		t.Errorf("caller B: got status %d, want %d", rrB.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_UnlimitedWhenRateLimitZero(t *testing.T) {
	middleware := NewRateLimiter().Middleware()

	handlerCallCount := 0
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))
	ctx := identityCtx("a@b.c")

	// Make many requests - all should succeed
	for i := range 10 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

		if rr.Code != http.StatusOK {
			t.Errorf("request %d: got status %d, want %d", i, rr.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 10 {
		t.Errorf("expected 10 handler calls, got %d", handlerCallCount)
	}
}

func TestRateLimiter_ExpiredLimiterIsReplaced(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(time.Nanosecond))

	first := rl.limiter("a@b.c")
	time.Sleep(time.Millisecond)
	second := rl.limiter("a@b.c")

	if first == second {
		t.Error("expected a fresh limiter after the TTL elapsed")
	}
}

func TestRateLimiter_ConcurrentFirstRequestsShareOneLimiter(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(time.Minute))

	const callers = 32
	got := make([]any, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = rl.limiter("a@b.c")
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if got[i] != got[0] {
			t.Fatalf("caller %d got a different limiter; burst would be exceeded", i)
		}
	}
}

func TestRateLimiter_SweepEvictsIdleCallers(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(10*time.Millisecond))

	for i := range 5 {
		rl.limiter(fmt.Sprintf("user%d@b.c", i))
	}
	time.Sleep(20 * time.Millisecond)

	// A new caller after the TTL triggers eviction of the idle ones.
	rl.limiter("late@b.c")

	count := 0
	rl.limiters.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 1 {
		t.Errorf("expected only the late caller to remain, got %d entries", count)
	}
}

func TestRateLimiter_ActiveCallerKeepsLimiter(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(time.Minute))

	first := rl.limiter("a@b.c")
	rl.sweep(time.Now())
	if second := rl.limiter("a@b.c"); first != second {
		t.Error("sweep must not evict a caller seen within the TTL")
	}
}
