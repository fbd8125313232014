package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"CoverPool/internal/engine"
)

func (s *Server) GetParams(c *gin.Context) {
	p := s.eng.Params()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"grace_days":               p.GraceDays,
		"fee_bps":                  p.FeeBps,
		"flash_claim_threshold":    p.FlashClaimThreshold,
		"loyalty_months_threshold": p.LoyaltyMonthsThreshold,
		"loyalty_reward_bps":       p.LoyaltyRewardBps,
		"treasury_account":         treasuryAccountString(p.TreasuryAccount),
	}})
}

func treasuryAccountString(account uuid.UUID) string {
	if account == uuid.Nil {
		return ""
	}
	return account.String()
}

type setTreasuryRequest struct {
	Account string `json:"account"`
}

func (s *Server) SetTreasury(c *gin.Context) {
	var req setTreasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	if err := s.eng.SetTreasury(idempotencyRef(c), account); err != nil {
		s.abortWithError(c, err)
		return
	}

	s.log.Info().Str("treasury", account.String()).Msg("treasury account updated")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"treasury_account": account.String()}})
}

type updateParamRequest struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

func (s *Server) UpdateParam(c *gin.Context) {
	var req updateParamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ref := idempotencyRef(c)
	var err error
	switch req.Name {
	case "grace_days":
		err = s.eng.SetGraceDays(ref, uint32(req.Value))
	case "fee_bps":
		err = s.eng.SetFeeBps(ref, uint32(req.Value))
	case "flash_claim_threshold":
		err = s.eng.SetFlashClaimThreshold(ref, req.Value)
	case "loyalty_months_threshold":
		err = s.eng.SetLoyaltyMonthsThreshold(ref, uint32(req.Value))
	case "loyalty_reward_bps":
		err = s.eng.SetLoyaltyRewardBps(ref, uint32(req.Value))
	default:
		s.abortWithError(c, engine.ErrInvalidParam)
		return
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	s.log.Info().Str("param", req.Name).Uint64("value", req.Value).Msg("param updated")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"name": req.Name, "value": req.Value}})
}

type adjustPremiumRequest struct {
	NewPremium uint64 `json:"new_premium"`
}

func (s *Server) AdjustPremium(c *gin.Context) {
	policyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req adjustPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := s.eng.AdjustPremium(idempotencyRef(c), policyID, req.NewPremium)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPolicyJSON(p)})
}

func (s *Server) SweepExpired(c *gin.Context) {
	expired := s.eng.SweepExpired()
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("manual expiry sweep")
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expired_count": expired}})
}

type faucetRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// FaucetMint funds a member wallet in dev mode. The route is only
// mounted when the wired transferer supports minting.
func (s *Server) FaucetMint(c *gin.Context) {
	var req faucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}
	if req.Amount == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount must be non-zero"})
		return
	}

	s.faucet.Mint(account, req.Amount)

	s.log.Info().Str("account", account.String()).Uint64("amount", req.Amount).Msg("faucet mint")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"account": account.String(),
		"balance": s.faucet.BalanceOf(account),
	}})
}

func (s *Server) VerifyIntegrity(c *gin.Context) {
	report, err := s.queries.VerifyIntegrity(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
