// internal/event/liquidity.go
package event

import "github.com/google/uuid"

// PoolFunded records an LP deposit and the minted shares.
type PoolFunded struct {
	Ref          string    `json:"ref"`
	Provider     uuid.UUID `json:"provider"`
	Amount       uint64    `json:"amount"`
	SharesMinted uint64    `json:"shares_minted"`
	PoolBalance  uint64    `json:"pool_balance"` // After the credit
	TotalShares  uint64    `json:"total_shares"` // After the mint
	FundedAt     int64     `json:"funded_at"`
}

func (e *PoolFunded) IdempotencyKey() string { return e.Ref }
func (e *PoolFunded) EventType() EventType   { return EventTypePoolFunded }
func (e *PoolFunded) PolicyID() *uuid.UUID   { return nil }

// LPWithdraw records a share redemption and the resulting payout.
type LPWithdraw struct {
	Ref          string    `json:"ref"`
	Provider     uuid.UUID `json:"provider"`
	SharesBurned uint64    `json:"shares_burned"`
	AmountOut    uint64    `json:"amount_out"`
	PoolBalance  uint64    `json:"pool_balance"` // After the debit
	TotalShares  uint64    `json:"total_shares"` // After the burn
	WithdrawnAt  int64     `json:"withdrawn_at"`
}

func (e *LPWithdraw) IdempotencyKey() string { return e.Ref }
func (e *LPWithdraw) EventType() EventType   { return EventTypeLPWithdraw }
func (e *LPWithdraw) PolicyID() *uuid.UUID   { return nil }

// ParamUpdated records an admin configuration change.
type ParamUpdated struct {
	Ref       string `json:"ref"`
	Param     string `json:"param"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	UpdatedAt int64  `json:"updated_at"`
}

func (e *ParamUpdated) IdempotencyKey() string { return e.Ref }
func (e *ParamUpdated) EventType() EventType   { return EventTypeParamUpdated }
func (e *ParamUpdated) PolicyID() *uuid.UUID   { return nil }
