package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type depositRequest struct {
	Provider string `json:"provider"`
	Amount   uint64 `json:"amount"`
}

func (s *Server) DepositLiquidity(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	provider, err := uuid.Parse(req.Provider)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid provider id"})
		return
	}

	shares, err := s.eng.DepositLiquidity(idempotencyRef(c), provider, req.Amount)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"shares_minted": shares}})
}

type withdrawRequest struct {
	Provider string `json:"provider"`
	Shares   uint64 `json:"shares"`
}

func (s *Server) WithdrawLiquidity(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	provider, err := uuid.Parse(req.Provider)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid provider id"})
		return
	}

	amount, err := s.eng.WithdrawLiquidity(idempotencyRef(c), provider, req.Shares)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"amount_returned": amount}})
}

func (s *Server) GetPoolStats(c *gin.Context) {
	stats := s.eng.GetPoolStats()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"balance":          stats.Balance,
		"total_shares":     stats.TotalShares,
		"total_coverage":   stats.TotalCoverage,
		"claims_paid":      stats.ClaimsPaid,
		"treasury_balance": stats.TreasuryBalance,
		"sequence":         s.eng.Sequence(),
	}})
}

// GetPoolSummary serves the projected pool view; unlike GetPoolStats it
// reads the database, so it may lag the live engine by a few sequences.
func (s *Server) GetPoolSummary(c *gin.Context) {
	summary, err := s.queries.GetPoolSummary(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetQuotes(c *gin.Context) {
	now := time.Now().Unix()
	quotes := s.oracle.Quotes()
	out := make([]gin.H, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, gin.H{
			"asset":       q.Asset,
			"price":       q.Price,
			"updated_at":  q.UpdatedAt,
			"age_seconds": now - q.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}
