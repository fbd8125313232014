package ledger

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for pool money flows
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
	assetID        AssetID
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
		assetID:        QuoteAssetID(),
	}
}

// SetSequence resets the generator sequence (used on snapshot restore)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// Sequence returns the next batch sequence (used for snapshots)
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

func toJournalAmount(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d exceeds journal range", amount)
	}
	return int64(amount), nil
}

// GeneratePremium creates journals for a premium collection (policy creation
// or renewal). Money flow, with the member clearing account netting to zero:
//
//	external:premiums → member:clearing  (gross)
//	member:clearing   → system:pool      (net)
//	member:clearing   → system:treasury  (fee)
func (jg *JournalGenerator) GeneratePremium(
	ownerID uuid.UUID,
	eventRef string,
	gross, net, fee uint64,
	timestamp int64,
) (*Batch, error) {
	if net+fee != gross {
		return nil, fmt.Errorf("premium split mismatch: gross=%d net=%d fee=%d", gross, net, fee)
	}

	grossAmt, err := toJournalAmount(gross)
	if err != nil {
		return nil, err
	}
	netAmt, err := toJournalAmount(net)
	if err != nil {
		return nil, err
	}
	feeAmt, err := toJournalAmount(fee)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 3),
	}

	clearing := NewMemberAccountKey(ownerID, SubTypeMemberClearing, jg.assetID)

	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  clearing,
		CreditAccount: NewExternalAccountKey(SubTypeExternalPremiums, jg.assetID),
		AssetID:       jg.assetID,
		Amount:        grossAmt,
		JournalType:   JournalTypePremiumReceipt,
		Timestamp:     timestamp,
	})

	if netAmt > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewSystemAccountKey(SubTypeSystemPool, jg.assetID),
			CreditAccount: clearing,
			AssetID:       jg.assetID,
			Amount:        netAmt,
			JournalType:   JournalTypePremiumAllocation,
			Timestamp:     timestamp,
		})
	}

	if feeAmt > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewSystemAccountKey(SubTypeSystemTreasury, jg.assetID),
			CreditAccount: clearing,
			AssetID:       jg.assetID,
			Amount:        feeAmt,
			JournalType:   JournalTypeProtocolFee,
			Timestamp:     timestamp,
		})
	}

	jg.sequence++
	return batch, nil
}

// GenerateLiquidityDeposit creates journals for an LP deposit.
// Deposits enter the pool whole: fees apply to premiums, not principal.
//
//	external:deposits → member:clearing → system:pool
func (jg *JournalGenerator) GenerateLiquidityDeposit(
	providerID uuid.UUID,
	eventRef string,
	amount uint64,
	timestamp int64,
) (*Batch, error) {
	amt, err := toJournalAmount(amount)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	clearing := NewMemberAccountKey(providerID, SubTypeMemberClearing, jg.assetID)

	batch.Journals = append(batch.Journals,
		Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  clearing,
			CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, jg.assetID),
			AssetID:       jg.assetID,
			Amount:        amt,
			JournalType:   JournalTypeLiquidityReceipt,
			Timestamp:     timestamp,
		},
		Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewSystemAccountKey(SubTypeSystemPool, jg.assetID),
			CreditAccount: clearing,
			AssetID:       jg.assetID,
			Amount:        amt,
			JournalType:   JournalTypeLiquidityAllocation,
			Timestamp:     timestamp,
		},
	)

	jg.sequence++
	return batch, nil
}

// GenerateLiquidityWithdrawal creates journals for an LP share redemption.
// Pre-check: the journaled pool must cover the outflow.
//
//	system:pool → member:clearing → external:payouts
func (jg *JournalGenerator) GenerateLiquidityWithdrawal(
	providerID uuid.UUID,
	eventRef string,
	amountOut uint64,
	timestamp int64,
) (*Batch, error) {
	return jg.generatePoolOutflow(
		providerID, eventRef, amountOut, timestamp,
		JournalTypeWithdrawalRelease, JournalTypeWithdrawalPayout,
	)
}

// GenerateClaimPayout creates journals for a full claim payout (strike
// breach or approved vote).
func (jg *JournalGenerator) GenerateClaimPayout(
	ownerID uuid.UUID,
	eventRef string,
	amount uint64,
	timestamp int64,
) (*Batch, error) {
	return jg.generatePoolOutflow(
		ownerID, eventRef, amount, timestamp,
		JournalTypeClaimRelease, JournalTypeClaimPayout,
	)
}

// GenerateFlashClaimPayout creates journals for a partial flash claim.
func (jg *JournalGenerator) GenerateFlashClaimPayout(
	ownerID uuid.UUID,
	eventRef string,
	amount uint64,
	timestamp int64,
) (*Batch, error) {
	return jg.generatePoolOutflow(
		ownerID, eventRef, amount, timestamp,
		JournalTypeFlashClaimRelease, JournalTypeFlashClaimPayout,
	)
}

// GenerateLoyaltyPayout creates journals for a loyalty reward.
func (jg *JournalGenerator) GenerateLoyaltyPayout(
	ownerID uuid.UUID,
	eventRef string,
	amount uint64,
	timestamp int64,
) (*Batch, error) {
	return jg.generatePoolOutflow(
		ownerID, eventRef, amount, timestamp,
		JournalTypeLoyaltyRelease, JournalTypeLoyaltyPayout,
	)
}

// generatePoolOutflow builds the two-leg pool → member → external flow
// shared by withdrawals and every payout variant.
func (jg *JournalGenerator) generatePoolOutflow(
	memberID uuid.UUID,
	eventRef string,
	amount uint64,
	timestamp int64,
	releaseType, payoutType JournalType,
) (*Batch, error) {
	amt, err := toJournalAmount(amount)
	if err != nil {
		return nil, err
	}

	// PRE-CHECK: pool must cover the outflow
	if err := jg.balanceTracker.ValidatePoolSufficient(jg.assetID, amt); err != nil {
		return nil, fmt.Errorf("outflow pre-check failed: %w", err)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	clearing := NewMemberAccountKey(memberID, SubTypeMemberClearing, jg.assetID)

	batch.Journals = append(batch.Journals,
		Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  clearing,
			CreditAccount: NewSystemAccountKey(SubTypeSystemPool, jg.assetID),
			AssetID:       jg.assetID,
			Amount:        amt,
			JournalType:   releaseType,
			Timestamp:     timestamp,
		},
		Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewExternalAccountKey(SubTypeExternalPayouts, jg.assetID),
			CreditAccount: clearing,
			AssetID:       jg.assetID,
			Amount:        amt,
			JournalType:   payoutType,
			Timestamp:     timestamp,
		},
	)

	jg.sequence++
	return batch, nil
}
