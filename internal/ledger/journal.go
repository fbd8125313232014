package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypePremiumReceipt JournalType = iota
	JournalTypePremiumAllocation
	JournalTypeProtocolFee
	JournalTypeLiquidityReceipt
	JournalTypeLiquidityAllocation
	JournalTypeWithdrawalRelease
	JournalTypeWithdrawalPayout
	JournalTypeClaimRelease
	JournalTypeClaimPayout
	JournalTypeFlashClaimRelease
	JournalTypeFlashClaimPayout
	JournalTypeLoyaltyRelease
	JournalTypeLoyaltyPayout
	JournalTypeAdjustment
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypePremiumReceipt:
		return "premium_receipt"
	case JournalTypePremiumAllocation:
		return "premium_allocation"
	case JournalTypeProtocolFee:
		return "protocol_fee"
	case JournalTypeLiquidityReceipt:
		return "liquidity_receipt"
	case JournalTypeLiquidityAllocation:
		return "liquidity_allocation"
	case JournalTypeWithdrawalRelease:
		return "withdrawal_release"
	case JournalTypeWithdrawalPayout:
		return "withdrawal_payout"
	case JournalTypeClaimRelease:
		return "claim_release"
	case JournalTypeClaimPayout:
		return "claim_payout"
	case JournalTypeFlashClaimRelease:
		return "flash_claim_release"
	case JournalTypeFlashClaimPayout:
		return "flash_claim_payout"
	case JournalTypeLoyaltyRelease:
		return "loyalty_release"
	case JournalTypeLoyaltyPayout:
		return "loyalty_payout"
	case JournalTypeAdjustment:
		return "adjustment"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (unix seconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Note on balance invariant: each journal entry is a balanced transfer by construction
// (a single positive amount moves from credit account to debit account). Therefore
// Σ debits == Σ credits is guaranteed per-entry. Multi-leg batches (e.g., premium with
// fee split) use multiple entries under one batch_id — each individually balanced.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		// Amounts must be strictly positive
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		// Validate batch consistency
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		// Validate debit != credit (no self-transfers)
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
