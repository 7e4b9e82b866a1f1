package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/comptroller/internal/policy"
	"github.com/terminal-bench/comptroller/internal/token"
	"github.com/terminal-bench/comptroller/pkg/decimal"
)

const maxEntries = 500

type accountRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type approveRequest struct {
	Holder string `json:"holder" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) getBalance(c *gin.Context) {
	addr := token.Address(c.Param("address"))
	c.JSON(http.StatusOK, gin.H{
		"address":   addr,
		"balance":   s.balances.BalanceOf(addr),
		"allowance": s.balances.Allowance(addr, s.controller.Address()),
	})
}

func (s *Server) listEntries(c *gin.Context) {
	if s.entries == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit trail not configured"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxEntries)
	}

	entries, err := s.entries.Entries(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) advanceEpoch(c *gin.Context) {
	if _, err := s.controller.AdvanceEpoch(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) accountOp(op func(context.Context, token.Address, decimal.Amount) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req accountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		amount, err := decimal.NewAmount(req.Amount)
		if err != nil {
			s.fail(c, err)
			return
		}

		if err := op(c.Request.Context(), token.Address(req.Account), amount); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s.controller.Snapshot())
	}
}

func (s *Server) amountOp(op func(context.Context, decimal.Amount) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		amount, err := decimal.NewAmount(req.Amount)
		if err != nil {
			s.fail(c, err)
			return
		}

		if err := op(c.Request.Context(), amount); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s.controller.Snapshot())
	}
}

func (s *Server) approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := claimsFrom(c).CanActFor(req.Holder); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "token subject does not match holder"})
		return
	}
	amount, err := decimal.NewAmount(req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	holder := token.Address(req.Holder)
	if err := s.controller.Approve(c.Request.Context(), holder, amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"holder":    holder,
		"spender":   s.controller.Address(),
		"allowance": s.balances.Allowance(holder, s.controller.Address()),
	})
}

// fail maps domain errors onto HTTP statuses
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", c.GetString(keyRequestID), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, decimal.ErrInvalidAmount),
		errors.Is(err, token.ErrZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrDebtCeilingExceeded),
		errors.Is(err, policy.ErrInsufficientDebt),
		errors.Is(err, policy.ErrInsufficientRedeemable),
		errors.Is(err, policy.ErrInsufficientBonded),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, decimal.ErrOverflow),
		errors.Is(err, decimal.ErrUnderflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
