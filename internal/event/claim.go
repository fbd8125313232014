// internal/event/claim.go
package event

import "github.com/google/uuid"

// ClaimPaid records a full automatic payout on strike breach.
// The policy is terminal after this event.
type ClaimPaid struct {
	Ref         string    `json:"ref"`
	ID          uuid.UUID `json:"policy_id"`
	Owner       uuid.UUID `json:"owner"`
	Amount      uint64    `json:"amount"`
	OraclePrice uint64    `json:"oracle_price"`
	StrikePrice uint64    `json:"strike_price"`
	PaidAt      int64     `json:"paid_at"`
}

func (e *ClaimPaid) IdempotencyKey() string { return e.Ref }
func (e *ClaimPaid) EventType() EventType   { return EventTypeClaimPaid }
func (e *ClaimPaid) PolicyID() *uuid.UUID   { return &e.ID }

// FlashClaimPaid records a partial payout under the flash threshold.
// The policy stays active.
type FlashClaimPaid struct {
	Ref         string    `json:"ref"`
	ID          uuid.UUID `json:"policy_id"`
	Owner       uuid.UUID `json:"owner"`
	Amount      uint64    `json:"amount"`
	OraclePrice uint64    `json:"oracle_price"`
	PaidAt      int64     `json:"paid_at"`
}

func (e *FlashClaimPaid) IdempotencyKey() string { return e.Ref }
func (e *FlashClaimPaid) EventType() EventType   { return EventTypeFlashClaimPaid }
func (e *FlashClaimPaid) PolicyID() *uuid.UUID   { return &e.ID }

// LoyaltyRewardClaimed records a claim-free streak reward.
type LoyaltyRewardClaimed struct {
	Ref              string    `json:"ref"`
	ID               uuid.UUID `json:"policy_id"`
	Owner            uuid.UUID `json:"owner"`
	Reward           uint64    `json:"reward"`
	MonthsSinceClaim uint32    `json:"months_since_claim"`
	PaidAt           int64     `json:"paid_at"`
}

func (e *LoyaltyRewardClaimed) IdempotencyKey() string { return e.Ref }
func (e *LoyaltyRewardClaimed) EventType() EventType   { return EventTypeLoyaltyRewardClaimed }
func (e *LoyaltyRewardClaimed) PolicyID() *uuid.UUID   { return &e.ID }

// ClaimSubmitted records a new claim proposal entering voting.
type ClaimSubmitted struct {
	Ref         string    `json:"ref"`
	ProposalID  uuid.UUID `json:"proposal_id"`
	ID          uuid.UUID `json:"policy_id"`
	Claimant    uuid.UUID `json:"claimant"`
	Amount      uint64    `json:"amount"`
	Reason      string    `json:"reason"`
	SubmittedAt int64     `json:"submitted_at"`
}

func (e *ClaimSubmitted) IdempotencyKey() string { return e.Ref }
func (e *ClaimSubmitted) EventType() EventType   { return EventTypeClaimSubmitted }
func (e *ClaimSubmitted) PolicyID() *uuid.UUID   { return &e.ID }

// ClaimVoted records one vote and the running tallies.
type ClaimVoted struct {
	Ref        string    `json:"ref"`
	ProposalID uuid.UUID `json:"proposal_id"`
	Voter      uuid.UUID `json:"voter"`
	Approve    bool      `json:"approve"`
	YesVotes   uint32    `json:"yes_votes"`
	NoVotes    uint32    `json:"no_votes"`
	VotedAt    int64     `json:"voted_at"`
}

func (e *ClaimVoted) IdempotencyKey() string { return e.Ref }
func (e *ClaimVoted) EventType() EventType   { return EventTypeClaimVoted }
func (e *ClaimVoted) PolicyID() *uuid.UUID   { return nil }

// ClaimPaidViaVote records an approved, funded proposal payout.
// Terminal for the policy, like ClaimPaid.
type ClaimPaidViaVote struct {
	Ref        string    `json:"ref"`
	ProposalID uuid.UUID `json:"proposal_id"`
	ID         uuid.UUID `json:"policy_id"`
	Claimant   uuid.UUID `json:"claimant"`
	Amount     uint64    `json:"amount"`
	YesVotes   uint32    `json:"yes_votes"`
	NoVotes    uint32    `json:"no_votes"`
	ExecutedAt int64     `json:"executed_at"`
}

func (e *ClaimPaidViaVote) IdempotencyKey() string { return e.Ref }
func (e *ClaimPaidViaVote) EventType() EventType   { return EventTypeClaimPaidViaVote }
func (e *ClaimPaidViaVote) PolicyID() *uuid.UUID   { return &e.ID }

// ClaimRejected records a quorum-met finalization that paid nothing:
// majority no, a tie, or an approved proposal the pool could not fund.
type ClaimRejected struct {
	Ref        string    `json:"ref"`
	ProposalID uuid.UUID `json:"proposal_id"`
	ID         uuid.UUID `json:"policy_id"`
	YesVotes   uint32    `json:"yes_votes"`
	NoVotes    uint32    `json:"no_votes"`
	Approved   bool      `json:"approved"` // true when approved but unfunded
	ExecutedAt int64     `json:"executed_at"`
}

func (e *ClaimRejected) IdempotencyKey() string { return e.Ref }
func (e *ClaimRejected) EventType() EventType   { return EventTypeClaimRejected }
func (e *ClaimRejected) PolicyID() *uuid.UUID   { return &e.ID }
