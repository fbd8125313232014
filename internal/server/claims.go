package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"CoverPool/internal/claims"
)

type proposalJSON struct {
	ID        uuid.UUID `json:"proposal_id"`
	PolicyID  uuid.UUID `json:"policy_id"`
	Claimant  uuid.UUID `json:"claimant"`
	Amount    uint64    `json:"amount"`
	Reason    string    `json:"reason"`
	YesVotes  uint32    `json:"yes_votes"`
	NoVotes   uint32    `json:"no_votes"`
	Executed  bool      `json:"executed"`
	CreatedAt int64     `json:"created_at"`
}

func toProposalJSON(p *claims.Proposal) proposalJSON {
	return proposalJSON{
		ID:        p.ID,
		PolicyID:  p.PolicyID,
		Claimant:  p.Claimant,
		Amount:    p.Amount,
		Reason:    p.Reason,
		YesVotes:  p.YesVotes,
		NoVotes:   p.NoVotes,
		Executed:  p.Executed,
		CreatedAt: p.CreatedAt,
	}
}

type submitClaimRequest struct {
	PolicyID string `json:"policy_id"`
	Claimant string `json:"claimant"`
	Amount   uint64 `json:"amount"`
	Reason   string `json:"reason"`
}

func (s *Server) SubmitClaim(c *gin.Context) {
	var req submitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	policyID, err := uuid.Parse(req.PolicyID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid policy id"})
		return
	}
	claimant, err := uuid.Parse(req.Claimant)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid claimant id"})
		return
	}

	prop, err := s.eng.SubmitClaim(idempotencyRef(c), policyID, claimant, req.Amount, req.Reason)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toProposalJSON(prop)})
}

func (s *Server) ListProposals(c *gin.Context) {
	all := s.eng.GetProposals()
	proposals := make([]proposalJSON, 0, len(all))
	for i := range all {
		proposals = append(proposals, toProposalJSON(&all[i]))
	}

	c.JSON(http.StatusOK, gin.H{"data": proposals})
}

func (s *Server) GetProposal(c *gin.Context) {
	proposalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	prop, err := s.eng.GetProposal(proposalID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toProposalJSON(&prop)})
}

type voteClaimRequest struct {
	Voter   string `json:"voter"`
	Approve bool   `json:"approve"`
}

func (s *Server) VoteClaim(c *gin.Context) {
	proposalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req voteClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	voter, err := uuid.Parse(req.Voter)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid voter id"})
		return
	}

	prop, err := s.eng.VoteClaim(idempotencyRef(c), proposalID, voter, req.Approve)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toProposalJSON(prop)})
}

func (s *Server) FinalizeClaim(c *gin.Context) {
	proposalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	approved, paid, err := s.eng.FinalizeClaim(idempotencyRef(c), proposalID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"approved":    approved,
		"amount_paid": paid,
	}})
}
