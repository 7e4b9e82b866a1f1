package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/terminal-bench/comptroller/internal/auth"
)

const (
	headerRequestID   = "X-Request-ID"
	headerIdempotency = "Idempotency-Key"
	keyRequestID      = "request_id"
	keyClaims         = "claims"
)

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = xid.New().String()
		}

		c.Set(keyRequestID, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("request",
			"request_id", c.GetString(keyRequestID),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(keyClaims, claims)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !claimsFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// idempotencyMiddleware runs a keyed write at most once per caller and
// route. Keys of failed requests are released so the caller can retry.
func (s *Server) idempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerIdempotency)
		if key == "" || s.idempotency == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := claimsFrom(c).Subject + ":" + c.FullPath() + ":" + key
		claimed, err := s.idempotency.Claim(ctx, scoped, s.idemTTL)
		if err != nil {
			s.logger.Error("idempotency store unavailable", "request_id", c.GetString(keyRequestID), "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := s.idempotency.Release(context.WithoutCancel(ctx), scoped); err != nil {
				s.logger.Warn("failed to release idempotency key", "request_id", c.GetString(keyRequestID), "error", err)
			}
		}
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	return c.MustGet(keyClaims).(*auth.Claims)
}

// RateLimiter is a sliding-window limiter keyed by client
type RateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows limit requests per key within window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	requests := rl.requests[key]
	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// sweep drops keys whose newest request is outside the window.
// Timestamps are appended in order, so the last one is the newest.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, requests := range rl.requests {
		if len(requests) == 0 || !requests[len(requests)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}
}
