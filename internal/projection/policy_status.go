package projection

import (
	"context"
	"database/sql"
	"encoding/json"

	"CoverPool/internal/engine"
	"CoverPool/internal/event"
)

// Policy status values in projections.policies.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
	StatusClaimed  = "claimed"
)

// applyPolicyEvent projects one event into the policy and claim-history
// read models. Events with no read-model impact fall through.
func applyPolicyEvent(ctx context.Context, tx *sql.Tx, out engine.Output) error {
	env := out.Envelope
	seq := env.Sequence

	switch env.EventType {
	case event.EventTypePolicyCreated:
		var evt event.PolicyCreated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.policies
				(policy_id, owner_id, asset, strike_price, coverage_amount, premium_amount,
				 status, months_active, total_premiums_paid, next_payment_due, grace_period_end,
				 last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11)
			ON CONFLICT (policy_id) DO NOTHING
		`, evt.ID, evt.Owner, evt.Asset, int64(evt.StrikePrice), int64(evt.CoverageAmount),
			int64(evt.PremiumAmount), StatusActive, int64(evt.PremiumAmount),
			evt.NextPaymentDue, evt.GracePeriodEnd, seq)
		return err

	case event.EventTypePremiumPaid:
		var evt event.PremiumPaid
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET months_active = $2, total_premiums_paid = $3,
			    next_payment_due = $4, grace_period_end = $5, last_sequence = $6
			WHERE policy_id = $1
		`, evt.ID, int64(evt.MonthsActive), int64(evt.TotalPremiumsPaid),
			evt.NextPaymentDue, evt.GracePeriodEnd, seq)
		return err

	case event.EventTypePolicyCanceled:
		var evt event.PolicyCanceled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return setPolicyStatus(ctx, tx, evt.ID.String(), StatusCanceled, seq)

	case event.EventTypePolicyExpired:
		var evt event.PolicyExpired
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return setPolicyStatus(ctx, tx, evt.ID.String(), StatusExpired, seq)

	case event.EventTypePremiumAdjusted:
		var evt event.PremiumAdjusted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET premium_amount = $2, last_sequence = $3
			WHERE policy_id = $1
		`, evt.ID, int64(evt.NewPremium), seq)
		return err

	case event.EventTypeClaimPaid:
		var evt event.ClaimPaid
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		if err := setPolicyStatus(ctx, tx, evt.ID.String(), StatusClaimed, seq); err != nil {
			return err
		}
		return insertClaimHistory(ctx, tx, seq, evt.ID.String(), nil, "breach_payout", int64(evt.Amount), evt.PaidAt)

	case event.EventTypeFlashClaimPaid:
		var evt event.FlashClaimPaid
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return insertClaimHistory(ctx, tx, seq, evt.ID.String(), nil, "flash_payout", int64(evt.Amount), evt.PaidAt)

	case event.EventTypeLoyaltyRewardClaimed:
		var evt event.LoyaltyRewardClaimed
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return insertClaimHistory(ctx, tx, seq, evt.ID.String(), nil, "loyalty_reward", int64(evt.Reward), evt.PaidAt)

	case event.EventTypeClaimSubmitted:
		var evt event.ClaimSubmitted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		pid := evt.ProposalID.String()
		return insertClaimHistory(ctx, tx, seq, evt.ID.String(), &pid, "claim_submitted", int64(evt.Amount), evt.SubmittedAt)

	case event.EventTypeClaimPaidViaVote:
		var evt event.ClaimPaidViaVote
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		if err := setPolicyStatus(ctx, tx, evt.ID.String(), StatusClaimed, seq); err != nil {
			return err
		}
		pid := evt.ProposalID.String()
		return insertClaimHistory(ctx, tx, seq, evt.ID.String(), &pid, "vote_payout", int64(evt.Amount), evt.ExecutedAt)

	case event.EventTypeClaimRejected:
		var evt event.ClaimRejected
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		pid := evt.ProposalID.String()
		kind := "claim_rejected"
		if evt.Approved {
			kind = "claim_unfunded"
		}
		return insertClaimHistory(ctx, tx, seq, evt.ID.String(), &pid, kind, 0, evt.ExecutedAt)
	}

	return nil
}

func setPolicyStatus(ctx context.Context, tx *sql.Tx, policyID, status string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.policies
		SET status = $2, last_sequence = $3
		WHERE policy_id = $1
	`, policyID, status, seq)
	return err
}

func insertClaimHistory(ctx context.Context, tx *sql.Tx, seq int64, policyID string, proposalID *string, kind string, amount, occurredAt int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.claim_history
			(sequence, policy_id, proposal_id, kind, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, policyID, proposalID, kind, amount, occurredAt)
	return err
}
