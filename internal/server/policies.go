package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"CoverPool/internal/policy"
)

type policyJSON struct {
	ID                    uuid.UUID `json:"policy_id"`
	Owner                 uuid.UUID `json:"owner"`
	Asset                 string    `json:"asset"`
	StrikePrice           uint64    `json:"strike_price"`
	CoverageAmount        uint64    `json:"coverage_amount"`
	PremiumAmount         uint64    `json:"premium_amount"`
	Active                bool      `json:"active"`
	Canceled              bool      `json:"canceled"`
	CreatedAt             int64     `json:"created_at"`
	NextPaymentDue        int64     `json:"next_payment_due"`
	GracePeriodEnd        int64     `json:"grace_period_end"`
	MonthsActive          uint32    `json:"months_active"`
	TotalPremiumsPaid     uint64    `json:"total_premiums_paid"`
	MonthsSinceClaim      uint32    `json:"months_since_claim"`
	LastClaimAt           int64     `json:"last_claim_at"`
	LoyaltyRewardsClaimed uint64    `json:"loyalty_rewards_claimed"`
}

func toPolicyJSON(p *policy.Policy) policyJSON {
	return policyJSON{
		ID:                    p.ID,
		Owner:                 p.Owner,
		Asset:                 p.Asset,
		StrikePrice:           p.StrikePrice,
		CoverageAmount:        p.CoverageAmount,
		PremiumAmount:         p.PremiumAmount,
		Active:                p.Active,
		Canceled:              p.Canceled,
		CreatedAt:             p.CreatedAt,
		NextPaymentDue:        p.NextPaymentDue,
		GracePeriodEnd:        p.GracePeriodEnd,
		MonthsActive:          p.MonthsActive,
		TotalPremiumsPaid:     p.TotalPremiumsPaid,
		MonthsSinceClaim:      p.MonthsSinceClaim,
		LastClaimAt:           p.LastClaimAt,
		LoyaltyRewardsClaimed: p.LoyaltyRewardsClaimed,
	}
}

type createPolicyRequest struct {
	Owner          string `json:"owner"`
	Asset          string `json:"asset"`
	StrikePrice    uint64 `json:"strike_price"`
	CoverageAmount uint64 `json:"coverage_amount"`
	PremiumAmount  uint64 `json:"premium_amount"`
}

func (s *Server) CreatePolicy(c *gin.Context) {
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
		return
	}

	p, err := s.eng.CreatePolicy(idempotencyRef(c), owner, req.Asset, req.StrikePrice, req.CoverageAmount, req.PremiumAmount)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toPolicyJSON(p)})
}

type payPremiumRequest struct {
	Payer string `json:"payer"`
}

func (s *Server) PayPremium(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req payPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	payer, err := uuid.Parse(req.Payer)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payer id"})
		return
	}

	p, err := s.eng.PayPremium(idempotencyRef(c), policyID, payer)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPolicyJSON(p)})
}

type cancelPolicyRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) CancelPolicy(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req cancelPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid caller id"})
		return
	}

	p, err := s.eng.CancelPolicy(idempotencyRef(c), policyID, caller)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPolicyJSON(p)})
}

func (s *Server) CheckAndPayout(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	paid, err := s.eng.CheckAndPayout(idempotencyRef(c), policyID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"amount_paid": paid}})
}

type flashClaimRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

func (s *Server) FlashClaim(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req flashClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid caller id"})
		return
	}

	paid, err := s.eng.FlashClaim(idempotencyRef(c), policyID, caller, req.Amount)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"amount_paid": paid}})
}

type loyaltyRewardRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) ClaimLoyaltyReward(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req loyaltyRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid caller id"})
		return
	}

	reward, err := s.eng.ClaimLoyaltyReward(idempotencyRef(c), policyID, caller)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"reward_paid": reward}})
}

func (s *Server) GetPolicy(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	p, err := s.eng.GetPolicy(policyID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPolicyJSON(&p)})
}

func (s *Server) GetPayments(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	records := s.eng.GetPayments(policyID)
	payments := make([]gin.H, 0, len(records))
	for _, rec := range records {
		payments = append(payments, gin.H{
			"month_index": rec.MonthIndex,
			"amount":      rec.Amount,
			"paid_at":     rec.PaidAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) GetClaimHistory(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	limit, after := pagination(c)
	history, err := s.queries.GetClaimHistory(c.Request.Context(), policyID, limit, after)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) GetPoliciesByOwner(c *gin.Context) {
	ownerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	owned := s.eng.GetPoliciesByOwner(ownerID)
	policies := make([]policyJSON, 0, len(owned))
	for i := range owned {
		policies = append(policies, toPolicyJSON(&owned[i]))
	}

	c.JSON(http.StatusOK, gin.H{"data": policies})
}

func (s *Server) GetShares(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"shares": s.eng.SharesOf(providerID)}})
}

func (s *Server) GetJournalHistory(c *gin.Context) {
	memberID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	limit, after := pagination(c)
	entries, err := s.queries.GetJournalHistory(c.Request.Context(), memberID, limit, after)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// --- helpers ---

func pathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, *int64) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var after *int64
	if raw := c.Query("after"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			after = &n
		}
	}
	return limit, after
}
