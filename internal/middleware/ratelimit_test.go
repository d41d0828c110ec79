package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/ledger/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limitedRouter(ctx context.Context, rate, burst int) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Actor(), middleware.NewRateLimiter(ctx, rate, burst).Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func get(r http.Handler, remote, actor string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.RemoteAddr = remote
	if actor != "" {
		req.Header.Set(middleware.ActorIDHeader, actor)
	}
	r.ServeHTTP(w, req)

	return w
}

func TestRateLimiter_BurstThenBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := limitedRouter(ctx, 1, 2)

	for i := range 3 {
		w := get(r, "1.2.3.4:1234", "")

		if i < 2 && w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}

		if i == 2 {
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("request %d: expected 429, got %d", i, w.Code)
			}

			if w.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After on 429")
			}
		}
	}
}

func TestRateLimiter_KeysByActorBeforeIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := limitedRouter(ctx, 1, 1)

	if w := get(r, "9.9.9.9:1000", "alice"); w.Code != http.StatusOK {
		t.Fatalf("alice first request: %d", w.Code)
	}

	// Same IP, different actor: separate bucket.
	if w := get(r, "9.9.9.9:1000", "bob"); w.Code != http.StatusOK {
		t.Fatalf("bob should not share alice's bucket, got %d", w.Code)
	}

	// Same actor from another IP: same bucket.
	if w := get(r, "8.8.8.8:1000", "alice"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("alice should be limited across IPs, got %d", w.Code)
	}
}

func TestRateLimiter_TokensRefill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := limitedRouter(ctx, 1_000_000, 2)

	for range 2 {
		get(r, "5.5.5.5:1000", "")
	}

	if w := get(r, "5.5.5.5:1000", ""); w.Code != http.StatusOK {
		t.Fatalf("expected tokens to refill, got %d", w.Code)
	}
}
