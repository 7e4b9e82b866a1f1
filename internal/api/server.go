package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/comptroller/internal/auth"
	"github.com/terminal-bench/comptroller/internal/comptroller"
	"github.com/terminal-bench/comptroller/internal/store"
	"github.com/terminal-bench/comptroller/internal/token"
	"github.com/terminal-bench/comptroller/pkg/decimal"
)

// Controller is the set of comptroller operations exposed over HTTP
type Controller interface {
	Address() token.Address
	Snapshot() comptroller.Snapshot
	AdvanceEpoch(ctx context.Context) (uint64, error)
	MintToAccount(ctx context.Context, recipient token.Address, amount decimal.Amount) error
	MintTo(ctx context.Context, target token.Address, amount decimal.Amount) error
	BurnFromAccount(ctx context.Context, holder token.Address, amount decimal.Amount) error
	RedeemToAccount(ctx context.Context, recipient token.Address, amount decimal.Amount) error
	IncreaseDebt(ctx context.Context, amount decimal.Amount) error
	DecreaseDebt(ctx context.Context, amount decimal.Amount) error
	IncrementTotalRedeemable(ctx context.Context, amount decimal.Amount) error
	IncrementTotalBonded(ctx context.Context, amount decimal.Amount) error
	DecrementTotalBonded(ctx context.Context, amount decimal.Amount) error
	Approve(ctx context.Context, holder token.Address, amount decimal.Amount) error
}

// Balances answers account reads
type Balances interface {
	BalanceOf(addr token.Address) decimal.Amount
	Allowance(owner, spender token.Address) decimal.Amount
}

// EntryLister lists the audit trail
type EntryLister interface {
	Entries(ctx context.Context, limit int) ([]store.Entry, error)
}

// IdempotencyStore claims Idempotency-Key values for write requests
type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Config holds HTTP server configuration
type Config struct {
	RateLimitWindow time.Duration
	RateLimitMax    int
	IdempotencyTTL  time.Duration
}

// Server is the HTTP surface of the comptroller
type Server struct {
	router      *gin.Engine
	controller  Controller
	balances    Balances
	entries     EntryLister
	auth        *auth.Service
	logger      *slog.Logger
	rateLimiter *RateLimiter
	hub         *Hub
	idempotency IdempotencyStore
	idemTTL     time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHub enables the event stream endpoint
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithIdempotency makes write endpoints honor the Idempotency-Key header
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Server) { s.idempotency = store }
}

// WithEntries enables the audit trail endpoint
func WithEntries(e EntryLister) Option {
	return func(s *Server) { s.entries = e }
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, controller Controller, balances Balances, authSvc *auth.Service, opts ...Option) *Server {
	s := &Server{
		router:     gin.New(),
		controller: controller,
		balances:   balances,
		auth:       authSvc,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		idemTTL:    cfg.IdempotencyTTL,
	}
	if s.idemTTL <= 0 {
		s.idemTTL = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimitMax > 0 && cfg.RateLimitWindow > 0 {
		s.rateLimiter = NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	if s.rateLimiter != nil {
		s.router.Use(s.rateLimitMiddleware())
	}

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/policy", s.getPolicy)
		v1.GET("/balances/:address", s.getBalance)
		v1.GET("/entries", s.listEntries)
		if s.hub != nil {
			v1.GET("/events/ws", s.hub.serveWS)
		}

		admin := v1.Group("", s.authMiddleware(), s.requireAdmin(), s.idempotencyMiddleware())
		{
			admin.POST("/epoch/advance", s.advanceEpoch)
			admin.POST("/mint", s.accountOp(s.controller.MintToAccount))
			admin.POST("/mint-to", s.accountOp(s.controller.MintTo))
			admin.POST("/burn", s.accountOp(s.controller.BurnFromAccount))
			admin.POST("/redeem", s.accountOp(s.controller.RedeemToAccount))
			admin.POST("/debt/increase", s.amountOp(s.controller.IncreaseDebt))
			admin.POST("/debt/decrease", s.amountOp(s.controller.DecreaseDebt))
			admin.POST("/redeemable/increment", s.amountOp(s.controller.IncrementTotalRedeemable))
			admin.POST("/bonded/increment", s.amountOp(s.controller.IncrementTotalBonded))
			admin.POST("/bonded/decrement", s.amountOp(s.controller.DecrementTotalBonded))
		}

		v1.POST("/approve", s.authMiddleware(), s.idempotencyMiddleware(), s.approve)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}
