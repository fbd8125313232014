package policy

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "CoverPool/internal/math"
)

// Ledger manages policy state and premium schedules. It is not safe for
// concurrent use: the engine serializes all access.
type Ledger struct {
	policies map[uuid.UUID]*Policy
	payments map[uuid.UUID][]PaymentRecord
}

func NewLedger() *Ledger {
	return &Ledger{
		policies: make(map[uuid.UUID]*Policy),
		payments: make(map[uuid.UUID][]PaymentRecord),
	}
}

// Get returns a policy or ErrNotFound.
func (l *Ledger) Get(policyID uuid.UUID) (*Policy, error) {
	p := l.policies[policyID]
	if p == nil {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrNotFound)
	}
	return p, nil
}

// Create opens a policy and records the first premium as month 1.
func (l *Ledger) Create(
	owner uuid.UUID,
	asset string,
	strike, coverage, premium uint64,
	graceSeconds int64,
	now int64,
) (*Policy, error) {
	if strike == 0 || coverage == 0 || premium == 0 {
		return nil, fmt.Errorf("strike, coverage and premium must be non-zero: %w", ErrInvalidInput)
	}
	if asset == "" {
		return nil, fmt.Errorf("asset must be set: %w", ErrInvalidInput)
	}

	p := &Policy{
		ID:                uuid.New(),
		Owner:             owner,
		Asset:             asset,
		StrikePrice:       strike,
		CoverageAmount:    coverage,
		PremiumAmount:     premium,
		Active:            true,
		CreatedAt:         now,
		NextPaymentDue:    now + PremiumPeriodSeconds,
		GracePeriodEnd:    now + PremiumPeriodSeconds + graceSeconds,
		MonthsActive:      1,
		TotalPremiumsPaid: premium,
		MonthsSinceClaim:  0,
		Version:           1,
	}

	l.policies[p.ID] = p
	l.payments[p.ID] = []PaymentRecord{{
		PolicyID:   p.ID,
		MonthIndex: 1,
		Amount:     premium,
		PaidAt:     now,
	}}

	return p, nil
}

// PayPremium records a renewal payment and advances the schedule.
// The caller is expected to have run CheckExpiry first; a lapsed policy
// still fails here as a backstop.
func (l *Ledger) PayPremium(
	policyID, payer uuid.UUID,
	graceSeconds int64,
	now int64,
) (*Policy, *PaymentRecord, error) {
	p, err := l.Get(policyID)
	if err != nil {
		return nil, nil, err
	}
	if p.Owner != payer {
		return nil, nil, fmt.Errorf("payer %s: %w", payer, ErrUnauthorized)
	}
	if !p.Active {
		return nil, nil, fmt.Errorf("policy %s: %w", policyID, ErrInactive)
	}
	if now < p.NextPaymentDue {
		return nil, nil, fmt.Errorf("due at %d, now %d: %w", p.NextPaymentDue, now, ErrPaymentNotYetDue)
	}
	if p.Lapsed(now) {
		return nil, nil, fmt.Errorf("grace ended at %d, now %d: %w", p.GracePeriodEnd, now, ErrPolicyLapsed)
	}

	total, err := fpmath.CheckedAdd(p.TotalPremiumsPaid, p.PremiumAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("total premiums: %w", err)
	}

	p.MonthsActive++
	p.MonthsSinceClaim++
	p.TotalPremiumsPaid = total
	p.NextPaymentDue += PremiumPeriodSeconds
	p.GracePeriodEnd = p.NextPaymentDue + graceSeconds
	p.Version++

	rec := PaymentRecord{
		PolicyID:   policyID,
		MonthIndex: p.MonthsActive,
		Amount:     p.PremiumAmount,
		PaidAt:     now,
	}
	l.payments[policyID] = append(l.payments[policyID], rec)

	return p, &rec, nil
}

// Cancel deactivates a policy at the owner's request. No refunds.
func (l *Ledger) Cancel(policyID, caller uuid.UUID) (*Policy, error) {
	p, err := l.Get(policyID)
	if err != nil {
		return nil, err
	}
	if p.Owner != caller {
		return nil, fmt.Errorf("caller %s: %w", caller, ErrUnauthorized)
	}
	if !p.Active {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrInactive)
	}

	p.Active = false
	p.Canceled = true
	p.Version++

	return p, nil
}

// CheckExpiry lapses a policy past its grace period. Idempotent: the
// Active flag guards the transition, so a second call is a no-op.
func (l *Ledger) CheckExpiry(policyID uuid.UUID, now int64) (bool, *Policy, error) {
	p, err := l.Get(policyID)
	if err != nil {
		return false, nil, err
	}
	if !p.Active || !p.Lapsed(now) {
		return false, p, nil
	}

	p.Active = false
	p.Version++

	return true, p, nil
}

// SweepExpired runs CheckExpiry over every policy and returns those that
// lapsed in this pass.
func (l *Ledger) SweepExpired(now int64) []*Policy {
	var expired []*Policy
	for id := range l.policies {
		if lapsed, p, _ := l.CheckExpiry(id, now); lapsed {
			expired = append(expired, p)
		}
	}
	return expired
}

// Deactivate ends a policy after a full claim payout. Canceled stays false.
func (l *Ledger) Deactivate(policyID uuid.UUID) (*Policy, error) {
	p, err := l.Get(policyID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrInactive)
	}

	p.Active = false
	p.Version++

	return p, nil
}

// RecordClaim resets the claim-free streak after any paid claim.
func (l *Ledger) RecordClaim(policyID uuid.UUID, now int64) error {
	p, err := l.Get(policyID)
	if err != nil {
		return err
	}
	p.MonthsSinceClaim = 0
	p.LastClaimAt = now
	p.Version++
	return nil
}

// RecordLoyaltyReward zeroes the claim-free streak and accumulates the
// paid reward. Unlike RecordClaim it leaves LastClaimAt alone.
func (l *Ledger) RecordLoyaltyReward(policyID uuid.UUID, reward uint64) error {
	p, err := l.Get(policyID)
	if err != nil {
		return err
	}
	p.MonthsSinceClaim = 0
	p.LoyaltyRewardsClaimed += reward
	p.Version++
	return nil
}

// AdjustPremium changes the premium for future renewals. Authorization is
// the engine's concern.
func (l *Ledger) AdjustPremium(policyID uuid.UUID, newPremium uint64) (uint64, *Policy, error) {
	if newPremium == 0 {
		return 0, nil, fmt.Errorf("premium must be non-zero: %w", ErrInvalidInput)
	}

	p, err := l.Get(policyID)
	if err != nil {
		return 0, nil, err
	}

	old := p.PremiumAmount
	p.PremiumAmount = newPremium
	p.Version++

	return old, p, nil
}

// Payments returns the recorded premium history for a policy.
func (l *Ledger) Payments(policyID uuid.UUID) []PaymentRecord {
	records := l.payments[policyID]
	out := make([]PaymentRecord, len(records))
	copy(out, records)
	return out
}

// GetAll returns all policies (for iteration and snapshots).
func (l *Ledger) GetAll() []*Policy {
	result := make([]*Policy, 0, len(l.policies))
	for _, p := range l.policies {
		result = append(result, p)
	}
	return result
}

// GetByOwner returns all policies held by a member.
func (l *Ledger) GetByOwner(owner uuid.UUID) []*Policy {
	var result []*Policy
	for _, p := range l.policies {
		if p.Owner == owner {
			result = append(result, p)
		}
	}
	return result
}

// SetPolicy directly installs a policy (snapshot restore and replay).
func (l *Ledger) SetPolicy(p *Policy) {
	l.policies[p.ID] = p
}

// AppendPayment directly installs a payment record (restore and replay).
func (l *Ledger) AppendPayment(rec PaymentRecord) {
	l.payments[rec.PolicyID] = append(l.payments[rec.PolicyID], rec)
}
