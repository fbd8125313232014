package query

import "github.com/google/uuid"

// PolicyResponse represents a policy read model for API queries.
type PolicyResponse struct {
	PolicyID          uuid.UUID `json:"policy_id"`
	Owner             uuid.UUID `json:"owner"`
	Asset             string    `json:"asset"`
	StrikePrice       int64     `json:"strike_price"`
	CoverageAmount    int64     `json:"coverage_amount"`
	PremiumAmount     int64     `json:"premium_amount"`
	Status            string    `json:"status"`
	MonthsActive      int64     `json:"months_active"`
	TotalPremiumsPaid int64     `json:"total_premiums_paid"`
	NextPaymentDue    int64     `json:"next_payment_due"`
	GracePeriodEnd    int64     `json:"grace_period_end"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

// ClaimHistoryEntry represents one claim-related event for API queries.
type ClaimHistoryEntry struct {
	Sequence     int64   `json:"sequence"`
	PolicyID     string  `json:"policy_id"`
	ProposalID   *string `json:"proposal_id,omitempty"`
	Kind         string  `json:"kind"`
	Amount       int64   `json:"amount"`
	OccurredAt   int64   `json:"occurred_at"`
	AsOfSequence int64   `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// PoolSummary reports the journaled pool and treasury balances.
type PoolSummary struct {
	PoolBalance     int64 `json:"pool_balance"`
	TreasuryBalance int64 `json:"treasury_balance"`
	AsOfSequence    int64 `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
