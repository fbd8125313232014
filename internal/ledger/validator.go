package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidatePoolNonNegative checks the journaled pool never goes negative
func (v *InvariantValidator) ValidatePoolNonNegative(assetID AssetID) error {
	key := NewSystemAccountKey(SubTypeSystemPool, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateTreasuryNonNegative checks protocol fees never go negative
func (v *InvariantValidator) ValidateTreasuryNonNegative(assetID AssetID) error {
	key := NewSystemAccountKey(SubTypeSystemTreasury, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateClearingSettled checks a member clearing account netted to zero
// after a batch has been fully applied
func (v *InvariantValidator) ValidateClearingSettled(memberID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateClearingSettled(memberID, assetID)
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
