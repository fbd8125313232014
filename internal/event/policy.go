// internal/event/policy.go
package event

import "github.com/google/uuid"

// PolicyCreated records a new policy and its first premium collection.
type PolicyCreated struct {
	Ref            string    `json:"ref"`
	ID             uuid.UUID `json:"policy_id"`
	Owner          uuid.UUID `json:"owner"`
	Asset          string    `json:"asset"`
	StrikePrice    uint64    `json:"strike_price"`
	CoverageAmount uint64    `json:"coverage_amount"`
	PremiumAmount  uint64    `json:"premium_amount"`
	FeePaid        uint64    `json:"fee_paid"`
	NetToPool      uint64    `json:"net_to_pool"`
	CreatedAt      int64     `json:"created_at"`
	NextPaymentDue int64     `json:"next_payment_due"`
	GracePeriodEnd int64     `json:"grace_period_end"`
}

func (e *PolicyCreated) IdempotencyKey() string { return e.Ref }
func (e *PolicyCreated) EventType() EventType   { return EventTypePolicyCreated }
func (e *PolicyCreated) PolicyID() *uuid.UUID   { return &e.ID }

// PremiumPaid records one renewal payment and the advanced schedule.
type PremiumPaid struct {
	Ref               string    `json:"ref"`
	ID                uuid.UUID `json:"policy_id"`
	Owner             uuid.UUID `json:"owner"`
	MonthIndex        uint32    `json:"month_index"`
	Amount            uint64    `json:"amount"`
	FeePaid           uint64    `json:"fee_paid"`
	NetToPool         uint64    `json:"net_to_pool"`
	NextPaymentDue    int64     `json:"next_payment_due"`
	GracePeriodEnd    int64     `json:"grace_period_end"`
	MonthsActive      uint32    `json:"months_active"`
	MonthsSinceClaim  uint32    `json:"months_since_claim"`
	TotalPremiumsPaid uint64    `json:"total_premiums_paid"`
	PaidAt            int64     `json:"paid_at"`
}

func (e *PremiumPaid) IdempotencyKey() string { return e.Ref }
func (e *PremiumPaid) EventType() EventType   { return EventTypePremiumPaid }
func (e *PremiumPaid) PolicyID() *uuid.UUID   { return &e.ID }

// PolicyCanceled records a voluntary cancellation. No refunds.
type PolicyCanceled struct {
	Ref              string    `json:"ref"`
	ID               uuid.UUID `json:"policy_id"`
	Owner            uuid.UUID `json:"owner"`
	CoverageReleased uint64    `json:"coverage_released"`
	CanceledAt       int64     `json:"canceled_at"`
}

func (e *PolicyCanceled) IdempotencyKey() string { return e.Ref }
func (e *PolicyCanceled) EventType() EventType   { return EventTypePolicyCanceled }
func (e *PolicyCanceled) PolicyID() *uuid.UUID   { return &e.ID }

// PolicyExpired records a lapse past the grace period.
type PolicyExpired struct {
	Ref              string    `json:"ref"`
	ID               uuid.UUID `json:"policy_id"`
	Owner            uuid.UUID `json:"owner"`
	CoverageReleased uint64    `json:"coverage_released"`
	ExpiredAt        int64     `json:"expired_at"`
}

func (e *PolicyExpired) IdempotencyKey() string { return e.Ref }
func (e *PolicyExpired) EventType() EventType   { return EventTypePolicyExpired }
func (e *PolicyExpired) PolicyID() *uuid.UUID   { return &e.ID }

// PremiumAdjusted records an admin premium change for future renewals.
type PremiumAdjusted struct {
	Ref        string    `json:"ref"`
	ID         uuid.UUID `json:"policy_id"`
	OldPremium uint64    `json:"old_premium"`
	NewPremium uint64    `json:"new_premium"`
	AdjustedAt int64     `json:"adjusted_at"`
}

func (e *PremiumAdjusted) IdempotencyKey() string { return e.Ref }
func (e *PremiumAdjusted) EventType() EventType   { return EventTypePremiumAdjusted }
func (e *PremiumAdjusted) PolicyID() *uuid.UUID   { return &e.ID }
