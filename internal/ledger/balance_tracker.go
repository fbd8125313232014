package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetPoolBalance returns the journaled pool liquidity balance
func (bt *BalanceTracker) GetPoolBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemPool, assetID))
}

// GetTreasuryBalance returns accumulated protocol fees
func (bt *BalanceTracker) GetTreasuryBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemTreasury, assetID))
}

// GetMemberClearing returns a member's clearing balance. It is zero between
// batches: every flow that touches a member nets clearing out within its
// own batch.
func (bt *BalanceTracker) GetMemberClearing(memberID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewMemberAccountKey(memberID, SubTypeMemberClearing, assetID))
}

// === Invariant Checks ===

// ValidatePoolSufficient checks the journaled pool can cover an outflow
func (bt *BalanceTracker) ValidatePoolSufficient(assetID AssetID, required int64) error {
	balance := bt.GetPoolBalance(assetID)
	if balance < required {
		return fmt.Errorf("insufficient pool balance: have=%d, need=%d", balance, required)
	}
	return nil
}

// ValidateClearingSettled checks a member clearing account netted to zero
func (bt *BalanceTracker) ValidateClearingSettled(memberID uuid.UUID, assetID AssetID) error {
	clearing := bt.GetMemberClearing(memberID, assetID)
	if clearing != 0 {
		return fmt.Errorf("member %s clearing account not settled: %d",
			memberID.String(), clearing)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// RestoreBalances rebuilds all balances from a snapshot
func (bt *BalanceTracker) RestoreBalances(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
