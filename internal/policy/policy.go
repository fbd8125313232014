package policy

import (
	"errors"

	"github.com/google/uuid"
)

// PremiumPeriodSeconds is the fixed billing period: 30 days exactly.
const PremiumPeriodSeconds int64 = 30 * 24 * 3600

var (
	ErrNotFound         = errors.New("policy not found")
	ErrUnauthorized     = errors.New("caller is not the policy owner")
	ErrInactive         = errors.New("policy is not active")
	ErrInvalidInput     = errors.New("invalid policy input")
	ErrPaymentNotYetDue = errors.New("premium payment not yet due")
	ErrPolicyLapsed     = errors.New("policy lapsed past grace period")
)

// Policy is a parametric insurance position: the owner is covered for
// CoverageAmount if the oracle price of Asset falls below StrikePrice.
type Policy struct {
	ID             uuid.UUID
	Owner          uuid.UUID
	Asset          string
	StrikePrice    uint64
	CoverageAmount uint64
	PremiumAmount  uint64

	// Active and Canceled are never both true. An expired policy is
	// inactive and uncanceled.
	Active   bool
	Canceled bool

	CreatedAt      int64 // Unix seconds
	NextPaymentDue int64
	GracePeriodEnd int64

	MonthsActive          uint32
	TotalPremiumsPaid     uint64
	MonthsSinceClaim      uint32
	LastClaimAt           int64 // Zero until the first claim
	LoyaltyRewardsClaimed uint64

	Version int64
}

// PaymentRecord is one collected premium. Month indexes are contiguous
// from 1; MonthsActive always equals the record count.
type PaymentRecord struct {
	PolicyID   uuid.UUID
	MonthIndex uint32
	Amount     uint64
	PaidAt     int64
}

// Lapsed reports whether the policy has outrun its grace period.
func (p *Policy) Lapsed(now int64) bool {
	return now > p.GracePeriodEnd
}
