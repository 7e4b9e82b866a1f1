package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminal-bench/comptroller/internal/auth"
	"github.com/terminal-bench/comptroller/internal/idempotency"
	"github.com/terminal-bench/comptroller/pkg/decimal"
)

func toJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestRateLimiter(t *testing.T) {
	t.Run("should allow requests again after the window", func(t *testing.T) {
		now := time.Unix(0, 0)
		rl := NewRateLimiter(2, time.Minute)
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))

		now = now.Add(time.Minute + time.Second)
		assert.True(t, rl.Allow("a"))
	})

	t.Run("should forget clients whose window has passed", func(t *testing.T) {
		now := time.Unix(0, 0)
		rl := NewRateLimiter(1, time.Minute)
		rl.now = func() time.Time { return now }

		for i := 0; i < 100; i++ {
			assert.True(t, rl.Allow(fmt.Sprintf("10.0.0.%d", i)))
		}
		assert.Len(t, rl.requests, 100)

		now = now.Add(time.Minute + time.Second)
		assert.True(t, rl.Allow("10.0.1.1"))
		assert.Len(t, rl.requests, 1)
		assert.Contains(t, rl.requests, "10.0.1.1")
	})

	t.Run("should keep clients still inside the window", func(t *testing.T) {
		now := time.Unix(0, 0)
		rl := NewRateLimiter(1, time.Minute)
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("old"))
		now = now.Add(30 * time.Second)
		assert.True(t, rl.Allow("recent"))

		now = now.Add(31 * time.Second)
		assert.True(t, rl.Allow("new"))
		assert.NotContains(t, rl.requests, "old")
		assert.Contains(t, rl.requests, "recent")
		assert.False(t, rl.Allow("recent"))
	})

	t.Run("should reject over-limit requests", func(t *testing.T) {
		f := newFixture(t)
		f.server = NewServer(Config{RateLimitMax: 1, RateLimitWindow: time.Minute}, f.controller, f.ledger, f.auth)

		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/health", "", nil).Code)
	})
}

func TestIdempotency(t *testing.T) {
	newIdempotentFixture := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.server = NewServer(Config{}, f.controller, f.ledger, f.auth, WithIdempotency(idempotency.NewMemoryStore()))
		return f
	}

	post := func(f *fixture, path, token, key string, body gin.H) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(toJSON(body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", key)
		f.server.Handler().ServeHTTP(w, req)
		return w
	}

	t.Run("should apply a keyed mint once", func(t *testing.T) {
		f := newIdempotentFixture(t)
		admin := f.token(t, "operator", auth.RoleAdmin)
		body := gin.H{"account": "alice", "amount": "100"}

		assert.Equal(t, http.StatusOK, post(f, "/api/v1/mint-to", admin, "k1", body).Code)
		assert.Equal(t, http.StatusConflict, post(f, "/api/v1/mint-to", admin, "k1", body).Code)
		assert.Equal(t, "100", f.ledger.TotalSupply().String())

		assert.Equal(t, http.StatusOK, post(f, "/api/v1/mint-to", admin, "k2", body).Code)
		assert.Equal(t, "200", f.ledger.TotalSupply().String())
	})

	t.Run("should allow a retry after a failed request", func(t *testing.T) {
		f := newIdempotentFixture(t)
		admin := f.token(t, "operator", auth.RoleAdmin)

		w := post(f, "/api/v1/debt/increase", admin, "k1", gin.H{"amount": "10"})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		require.NoError(t, f.controller.MintTo(context.Background(), "alice", decimal.NewAmountFromUint64(10)))
		w = post(f, "/api/v1/debt/increase", admin, "k1", gin.H{"amount": "10"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", f.controller.TotalDebt().String())
	})

	t.Run("should scope keys per route", func(t *testing.T) {
		f := newIdempotentFixture(t)
		admin := f.token(t, "operator", auth.RoleAdmin)

		assert.Equal(t, http.StatusOK, post(f, "/api/v1/mint-to", admin, "k1", gin.H{"account": "alice", "amount": "5"}).Code)
		assert.Equal(t, http.StatusOK, post(f, "/api/v1/bonded/increment", admin, "k1", gin.H{"amount": "5"}).Code)
	})
}
