package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"CoverPool/internal/claims"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/policy"
)

// ApplyEnvelope re-applies one persisted event during startup recovery.
// Payloads carry the resulting state values, so replay is a pure
// application of recorded facts: no oracle reads, no transfers, no
// re-validation. Journal batches are regenerated so the balance tracker
// and the hash chain come out identical; any hash mismatch means the log
// and the code disagree and recovery must stop.
func (e *Engine) ApplyEnvelope(env *event.EventEnvelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if env.Sequence != e.sequence {
		return fmt.Errorf("replay gap: log sequence %d, engine at %d", env.Sequence, e.sequence)
	}
	if prev := e.hasher.GetPrevHash(); !bytes.Equal(prev[:], env.PrevHash[:]) {
		return fmt.Errorf("replay chain break at sequence %d: prev hash mismatch", env.Sequence)
	}

	batch, err := e.replayEvent(env)
	if err != nil {
		return fmt.Errorf("replay sequence %d (%s): %w", env.Sequence, env.EventType, err)
	}

	if batch != nil {
		if err := e.tracker.ApplyBatch(batch); err != nil {
			return fmt.Errorf("replay sequence %d: apply batch: %w", env.Sequence, err)
		}
	}

	digest := e.computeStateDigest(batch)
	stateHash := e.hasher.ComputeHash(env.Sequence, digest)
	if !bytes.Equal(stateHash[:], env.StateHash[:]) {
		return fmt.Errorf("replay divergence at sequence %d: state hash mismatch", env.Sequence)
	}

	e.idempotency.MarkProcessed(env.EventType.String(), env.IdempotencyKey)
	e.sequence = env.Sequence + 1

	if e.metrics != nil {
		e.metrics.ReplayEventsTotal.Inc()
	}
	return nil
}

// replayEvent dispatches on event type, mutates domain state, and
// returns the regenerated journal batch (nil for state-only events).
func (e *Engine) replayEvent(env *event.EventEnvelope) (*ledger.Batch, error) {
	switch env.EventType {

	case event.EventTypePolicyCreated:
		var evt event.PolicyCreated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		e.policies.SetPolicy(&policy.Policy{
			ID:                evt.ID,
			Owner:             evt.Owner,
			Asset:             evt.Asset,
			StrikePrice:       evt.StrikePrice,
			CoverageAmount:    evt.CoverageAmount,
			PremiumAmount:     evt.PremiumAmount,
			Active:            true,
			CreatedAt:         evt.CreatedAt,
			NextPaymentDue:    evt.NextPaymentDue,
			GracePeriodEnd:    evt.GracePeriodEnd,
			MonthsActive:      1,
			TotalPremiumsPaid: evt.PremiumAmount,
			Version:           1,
		})
		e.policies.AppendPayment(policy.PaymentRecord{
			PolicyID:   evt.ID,
			MonthIndex: 1,
			Amount:     evt.PremiumAmount,
			PaidAt:     evt.CreatedAt,
		})
		if err := e.pool.Credit(evt.NetToPool); err != nil {
			return nil, err
		}
		if err := e.pool.AddExposure(evt.CoverageAmount); err != nil {
			return nil, err
		}
		e.activePolicies++
		return e.journalGen.GeneratePremium(evt.Owner, evt.Ref, evt.PremiumAmount, evt.NetToPool, evt.FeePaid, evt.CreatedAt)

	case event.EventTypePremiumPaid:
		var evt event.PremiumPaid
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		p.MonthsActive = evt.MonthsActive
		p.MonthsSinceClaim = evt.MonthsSinceClaim
		p.TotalPremiumsPaid = evt.TotalPremiumsPaid
		p.NextPaymentDue = evt.NextPaymentDue
		p.GracePeriodEnd = evt.GracePeriodEnd
		p.Version++
		e.policies.AppendPayment(policy.PaymentRecord{
			PolicyID:   evt.ID,
			MonthIndex: evt.MonthIndex,
			Amount:     evt.Amount,
			PaidAt:     evt.PaidAt,
		})
		if err := e.pool.Credit(evt.NetToPool); err != nil {
			return nil, err
		}
		return e.journalGen.GeneratePremium(evt.Owner, evt.Ref, evt.Amount, evt.NetToPool, evt.FeePaid, evt.PaidAt)

	case event.EventTypePolicyCanceled:
		var evt event.PolicyCanceled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		p.Active = false
		p.Canceled = true
		p.Version++
		e.activePolicies--
		return nil, e.pool.ReleaseExposure(evt.CoverageReleased)

	case event.EventTypePolicyExpired:
		var evt event.PolicyExpired
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		p.Active = false
		p.Version++
		e.activePolicies--
		return nil, e.pool.ReleaseExposure(evt.CoverageReleased)

	case event.EventTypePremiumAdjusted:
		var evt event.PremiumAdjusted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		p.PremiumAmount = evt.NewPremium
		p.Version++
		return nil, nil

	case event.EventTypeClaimPaid:
		var evt event.ClaimPaid
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		if err := e.pool.Debit(evt.Amount); err != nil {
			return nil, err
		}
		if err := e.pool.RecordClaimPaid(evt.Amount); err != nil {
			return nil, err
		}
		if err := e.pool.ReleaseExposure(p.CoverageAmount); err != nil {
			return nil, err
		}
		p.MonthsSinceClaim = 0
		p.LastClaimAt = evt.PaidAt
		p.Active = false
		p.Version++
		e.activePolicies--
		return e.journalGen.GenerateClaimPayout(evt.Owner, evt.Ref, evt.Amount, evt.PaidAt)

	case event.EventTypeFlashClaimPaid:
		var evt event.FlashClaimPaid
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		if err := e.pool.Debit(evt.Amount); err != nil {
			return nil, err
		}
		if err := e.pool.RecordClaimPaid(evt.Amount); err != nil {
			return nil, err
		}
		p.MonthsSinceClaim = 0
		p.LastClaimAt = evt.PaidAt
		p.Version++
		return e.journalGen.GenerateFlashClaimPayout(evt.Owner, evt.Ref, evt.Amount, evt.PaidAt)

	case event.EventTypeLoyaltyRewardClaimed:
		var evt event.LoyaltyRewardClaimed
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		if err := e.pool.Debit(evt.Reward); err != nil {
			return nil, err
		}
		p.MonthsSinceClaim = 0
		p.LoyaltyRewardsClaimed += evt.Reward
		p.Version++
		return e.journalGen.GenerateLoyaltyPayout(evt.Owner, evt.Ref, evt.Reward, evt.PaidAt)

	case event.EventTypePoolFunded:
		var evt event.PoolFunded
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		minted, err := e.pool.Deposit(evt.Provider, evt.Amount)
		if err != nil {
			return nil, err
		}
		if minted != evt.SharesMinted {
			return nil, fmt.Errorf("deposit recompute minted %d, log says %d", minted, evt.SharesMinted)
		}
		return e.journalGen.GenerateLiquidityDeposit(evt.Provider, evt.Ref, evt.Amount, evt.FundedAt)

	case event.EventTypeLPWithdraw:
		var evt event.LPWithdraw
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		var batch *ledger.Batch
		if evt.AmountOut > 0 {
			var err error
			batch, err = e.journalGen.GenerateLiquidityWithdrawal(evt.Provider, evt.Ref, evt.AmountOut, evt.WithdrawnAt)
			if err != nil {
				return nil, err
			}
		}
		out, err := e.pool.Withdraw(evt.Provider, evt.SharesBurned)
		if err != nil {
			return nil, err
		}
		if out != evt.AmountOut {
			return nil, fmt.Errorf("withdraw recompute paid %d, log says %d", out, evt.AmountOut)
		}
		return batch, nil

	case event.EventTypeClaimSubmitted:
		var evt event.ClaimSubmitted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		e.claimsEng.SetProposal(&claims.Proposal{
			ID:        evt.ProposalID,
			PolicyID:  evt.ID,
			Claimant:  evt.Claimant,
			Amount:    evt.Amount,
			Reason:    evt.Reason,
			CreatedAt: evt.SubmittedAt,
			Version:   1,
		})
		e.openProposals++
		return nil, nil

	case event.EventTypeClaimVoted:
		var evt event.ClaimVoted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		prop, err := e.claimsEng.Get(evt.ProposalID)
		if err != nil {
			return nil, err
		}
		prop.YesVotes = evt.YesVotes
		prop.NoVotes = evt.NoVotes
		prop.Version++
		e.claimsEng.RestoreVoter(evt.ProposalID, evt.Voter)
		return nil, nil

	case event.EventTypeClaimPaidViaVote:
		var evt event.ClaimPaidViaVote
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		prop, err := e.claimsEng.Get(evt.ProposalID)
		if err != nil {
			return nil, err
		}
		prop.Executed = true
		prop.Version++
		e.openProposals--
		p, err := e.policies.Get(evt.ID)
		if err != nil {
			return nil, err
		}
		if err := e.pool.Debit(evt.Amount); err != nil {
			return nil, err
		}
		if err := e.pool.RecordClaimPaid(evt.Amount); err != nil {
			return nil, err
		}
		if err := e.pool.ReleaseExposure(p.CoverageAmount); err != nil {
			return nil, err
		}
		p.MonthsSinceClaim = 0
		p.LastClaimAt = evt.ExecutedAt
		p.Active = false
		p.Version++
		e.activePolicies--
		return e.journalGen.GenerateClaimPayout(evt.Claimant, evt.Ref, evt.Amount, evt.ExecutedAt)

	case event.EventTypeClaimRejected:
		var evt event.ClaimRejected
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		prop, err := e.claimsEng.Get(evt.ProposalID)
		if err != nil {
			return nil, err
		}
		prop.Executed = true
		prop.Version++
		e.openProposals--
		return nil, nil

	case event.EventTypeParamUpdated:
		var evt event.ParamUpdated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, err
		}
		return nil, e.replayParam(evt.Param, evt.NewValue)
	}

	return nil, fmt.Errorf("unknown event type %d", env.EventType)
}

func (e *Engine) replayParam(name, value string) error {
	if name == "treasury_account" {
		account, err := uuid.Parse(value)
		if err != nil {
			return fmt.Errorf("param %s value %q: %w", name, value, err)
		}
		e.params.TreasuryAccount = account
		return nil
	}

	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("param %s value %q: %w", name, value, err)
	}

	switch name {
	case "grace_days":
		e.params.GraceDays = uint32(v)
	case "fee_bps":
		e.params.FeeBps = uint32(v)
	case "flash_claim_threshold":
		e.params.FlashClaimThreshold = v
	case "loyalty_months_threshold":
		e.params.LoyaltyMonthsThreshold = uint32(v)
	case "loyalty_reward_bps":
		e.params.LoyaltyRewardBps = uint32(v)
	default:
		return fmt.Errorf("unknown param %q", name)
	}
	return nil
}
