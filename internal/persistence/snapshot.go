package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CoverPool/internal/claims"
	"CoverPool/internal/engine"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/policy"
)

// SnapshotManager creates and loads state snapshots for recovery. Snapshots
// are taken periodically; warm restart loads the latest verified snapshot
// and replays events from snapshot.sequence+1.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the wire form of the full engine state at a point in time.
// Balances and holders are keyed by string paths/UUIDs so the JSON survives
// format evolution better than binary keys would.
type SnapshotData struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	JournalSequence int64            `json:"journal_sequence"`
	Balances        map[string]int64 `json:"balances"` // AccountPath -> balance

	Policies []PolicySnapshot  `json:"policies"`
	Payments []PaymentSnapshot `json:"payments"`

	PoolBalance    uint64            `json:"pool_balance"`
	PoolShares     uint64            `json:"pool_shares"`
	PoolCoverage   uint64            `json:"pool_coverage"`
	PoolClaimsPaid uint64            `json:"pool_claims_paid"`
	Holders        map[string]uint64 `json:"holders"` // provider UUID -> shares

	Proposals []ProposalSnapshot  `json:"proposals"`
	Voters    map[string][]string `json:"voters"` // proposal UUID -> voter UUIDs

	Params ParamsSnapshot `json:"params"`

	IdempotencyKeys []string  `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time `json:"created_at"`
}

// PolicySnapshot is a serializable policy.
type PolicySnapshot struct {
	ID                    string `json:"id"`
	Owner                 string `json:"owner"`
	Asset                 string `json:"asset"`
	StrikePrice           uint64 `json:"strike_price"`
	CoverageAmount        uint64 `json:"coverage_amount"`
	PremiumAmount         uint64 `json:"premium_amount"`
	Active                bool   `json:"active"`
	Canceled              bool   `json:"canceled"`
	CreatedAt             int64  `json:"created_at"`
	NextPaymentDue        int64  `json:"next_payment_due"`
	GracePeriodEnd        int64  `json:"grace_period_end"`
	MonthsActive          uint32 `json:"months_active"`
	TotalPremiumsPaid     uint64 `json:"total_premiums_paid"`
	MonthsSinceClaim      uint32 `json:"months_since_claim"`
	LastClaimAt           int64  `json:"last_claim_at"`
	LoyaltyRewardsClaimed uint64 `json:"loyalty_rewards_claimed"`
	Version               int64  `json:"version"`
}

// PaymentSnapshot is a serializable premium payment record.
type PaymentSnapshot struct {
	PolicyID   string `json:"policy_id"`
	MonthIndex uint32 `json:"month_index"`
	Amount     uint64 `json:"amount"`
	PaidAt     int64  `json:"paid_at"`
}

// ProposalSnapshot is a serializable claim proposal.
type ProposalSnapshot struct {
	ID        string `json:"id"`
	PolicyID  string `json:"policy_id"`
	Claimant  string `json:"claimant"`
	Amount    uint64 `json:"amount"`
	Reason    string `json:"reason"`
	YesVotes  uint32 `json:"yes_votes"`
	NoVotes   uint32 `json:"no_votes"`
	Executed  bool   `json:"executed"`
	CreatedAt int64  `json:"created_at"`
	Version   int64  `json:"version"`
}

// ParamsSnapshot is the serializable runtime parameter set.
type ParamsSnapshot struct {
	GraceDays              uint32 `json:"grace_days"`
	FeeBps                 uint32 `json:"fee_bps"`
	FlashClaimThreshold    uint64 `json:"flash_claim_threshold"`
	LoyaltyMonthsThreshold uint32 `json:"loyalty_months_threshold"`
	LoyaltyRewardBps       uint32 `json:"loyalty_reward_bps"`
	TreasuryAccount        string `json:"treasury_account,omitempty"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

func treasuryString(account uuid.UUID) string {
	if account == uuid.Nil {
		return ""
	}
	return account.String()
}

// FromEngineState converts the engine's in-memory snapshot to wire form.
func FromEngineState(snap *engine.SnapshotState, createdAt time.Time) *SnapshotData {
	sd := &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       append([]byte(nil), snap.StateHash[:]...),
		JournalSequence: snap.JournalSequence,
		Balances:        make(map[string]int64, len(snap.Balances)),
		PoolBalance:     snap.PoolBalance,
		PoolShares:      snap.PoolShares,
		PoolCoverage:    snap.PoolCoverage,
		PoolClaimsPaid:  snap.PoolClaimsPaid,
		Holders:         make(map[string]uint64, len(snap.Holders)),
		Voters:          make(map[string][]string, len(snap.Voters)),
		Params: ParamsSnapshot{
			GraceDays:              snap.Params.GraceDays,
			FeeBps:                 snap.Params.FeeBps,
			FlashClaimThreshold:    snap.Params.FlashClaimThreshold,
			LoyaltyMonthsThreshold: snap.Params.LoyaltyMonthsThreshold,
			LoyaltyRewardBps:       snap.Params.LoyaltyRewardBps,
			TreasuryAccount:        treasuryString(snap.Params.TreasuryAccount),
		},
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       createdAt,
	}

	for key, bal := range snap.Balances {
		sd.Balances[key.AccountPath()] = bal
	}
	for provider, shares := range snap.Holders {
		sd.Holders[provider.String()] = shares
	}
	for proposalID, voters := range snap.Voters {
		names := make([]string, 0, len(voters))
		for _, v := range voters {
			names = append(names, v.String())
		}
		sd.Voters[proposalID.String()] = names
	}

	for _, p := range snap.Policies {
		sd.Policies = append(sd.Policies, PolicySnapshot{
			ID:                    p.ID.String(),
			Owner:                 p.Owner.String(),
			Asset:                 p.Asset,
			StrikePrice:           p.StrikePrice,
			CoverageAmount:        p.CoverageAmount,
			PremiumAmount:         p.PremiumAmount,
			Active:                p.Active,
			Canceled:              p.Canceled,
			CreatedAt:             p.CreatedAt,
			NextPaymentDue:        p.NextPaymentDue,
			GracePeriodEnd:        p.GracePeriodEnd,
			MonthsActive:          p.MonthsActive,
			TotalPremiumsPaid:     p.TotalPremiumsPaid,
			MonthsSinceClaim:      p.MonthsSinceClaim,
			LastClaimAt:           p.LastClaimAt,
			LoyaltyRewardsClaimed: p.LoyaltyRewardsClaimed,
			Version:               p.Version,
		})
	}
	for _, rec := range snap.Payments {
		sd.Payments = append(sd.Payments, PaymentSnapshot{
			PolicyID:   rec.PolicyID.String(),
			MonthIndex: rec.MonthIndex,
			Amount:     rec.Amount,
			PaidAt:     rec.PaidAt,
		})
	}
	for _, prop := range snap.Proposals {
		sd.Proposals = append(sd.Proposals, ProposalSnapshot{
			ID:        prop.ID.String(),
			PolicyID:  prop.PolicyID.String(),
			Claimant:  prop.Claimant.String(),
			Amount:    prop.Amount,
			Reason:    prop.Reason,
			YesVotes:  prop.YesVotes,
			NoVotes:   prop.NoVotes,
			Executed:  prop.Executed,
			CreatedAt: prop.CreatedAt,
			Version:   prop.Version,
		})
	}

	return sd
}

// ToEngineState converts the wire form back for engine restore.
func (sd *SnapshotData) ToEngineState() (*engine.SnapshotState, error) {
	if len(sd.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot state hash has %d bytes, want 32", len(sd.StateHash))
	}

	snap := &engine.SnapshotState{
		Sequence:        sd.Sequence,
		JournalSequence: sd.JournalSequence,
		Balances:        make(map[ledger.AccountKey]int64, len(sd.Balances)),
		PoolBalance:     sd.PoolBalance,
		PoolShares:      sd.PoolShares,
		PoolCoverage:    sd.PoolCoverage,
		PoolClaimsPaid:  sd.PoolClaimsPaid,
		Holders:         make(map[uuid.UUID]uint64, len(sd.Holders)),
		Voters:          make(map[uuid.UUID][]uuid.UUID, len(sd.Voters)),
		Params: engine.Params{
			GraceDays:              sd.Params.GraceDays,
			FeeBps:                 sd.Params.FeeBps,
			FlashClaimThreshold:    sd.Params.FlashClaimThreshold,
			LoyaltyMonthsThreshold: sd.Params.LoyaltyMonthsThreshold,
			LoyaltyRewardBps:       sd.Params.LoyaltyRewardBps,
		},
		IdempotencyKeys: sd.IdempotencyKeys,
	}
	copy(snap.StateHash[:], sd.StateHash)

	if sd.Params.TreasuryAccount != "" {
		account, err := uuid.Parse(sd.Params.TreasuryAccount)
		if err != nil {
			return nil, fmt.Errorf("snapshot treasury account: %w", err)
		}
		snap.Params.TreasuryAccount = account
	}

	for path, bal := range sd.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot balance: %w", err)
		}
		snap.Balances[key] = bal
	}
	for provider, shares := range sd.Holders {
		id, err := uuid.Parse(provider)
		if err != nil {
			return nil, fmt.Errorf("snapshot holder %q: %w", provider, err)
		}
		snap.Holders[id] = shares
	}
	for proposal, voters := range sd.Voters {
		pid, err := uuid.Parse(proposal)
		if err != nil {
			return nil, fmt.Errorf("snapshot proposal %q: %w", proposal, err)
		}
		ids := make([]uuid.UUID, 0, len(voters))
		for _, v := range voters {
			vid, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("snapshot voter %q: %w", v, err)
			}
			ids = append(ids, vid)
		}
		snap.Voters[pid] = ids
	}

	for _, ps := range sd.Policies {
		id, err := uuid.Parse(ps.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot policy %q: %w", ps.ID, err)
		}
		owner, err := uuid.Parse(ps.Owner)
		if err != nil {
			return nil, fmt.Errorf("snapshot policy owner %q: %w", ps.Owner, err)
		}
		snap.Policies = append(snap.Policies, policy.Policy{
			ID:                    id,
			Owner:                 owner,
			Asset:                 ps.Asset,
			StrikePrice:           ps.StrikePrice,
			CoverageAmount:        ps.CoverageAmount,
			PremiumAmount:         ps.PremiumAmount,
			Active:                ps.Active,
			Canceled:              ps.Canceled,
			CreatedAt:             ps.CreatedAt,
			NextPaymentDue:        ps.NextPaymentDue,
			GracePeriodEnd:        ps.GracePeriodEnd,
			MonthsActive:          ps.MonthsActive,
			TotalPremiumsPaid:     ps.TotalPremiumsPaid,
			MonthsSinceClaim:      ps.MonthsSinceClaim,
			LastClaimAt:           ps.LastClaimAt,
			LoyaltyRewardsClaimed: ps.LoyaltyRewardsClaimed,
			Version:               ps.Version,
		})
	}
	for _, rec := range sd.Payments {
		pid, err := uuid.Parse(rec.PolicyID)
		if err != nil {
			return nil, fmt.Errorf("snapshot payment policy %q: %w", rec.PolicyID, err)
		}
		snap.Payments = append(snap.Payments, policy.PaymentRecord{
			PolicyID:   pid,
			MonthIndex: rec.MonthIndex,
			Amount:     rec.Amount,
			PaidAt:     rec.PaidAt,
		})
	}
	for _, prs := range sd.Proposals {
		id, err := uuid.Parse(prs.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot proposal %q: %w", prs.ID, err)
		}
		pid, err := uuid.Parse(prs.PolicyID)
		if err != nil {
			return nil, fmt.Errorf("snapshot proposal policy %q: %w", prs.PolicyID, err)
		}
		claimant, err := uuid.Parse(prs.Claimant)
		if err != nil {
			return nil, fmt.Errorf("snapshot claimant %q: %w", prs.Claimant, err)
		}
		snap.Proposals = append(snap.Proposals, claims.Proposal{
			ID:        id,
			PolicyID:  pid,
			Claimant:  claimant,
			Amount:    prs.Amount,
			Reason:    prs.Reason,
			YesVotes:  prs.YesVotes,
			NoVotes:   prs.NoVotes,
			Executed:  prs.Executed,
			CreatedAt: prs.CreatedAt,
			Version:   prs.Version,
		})
	}

	return snap, nil
}

// SaveSnapshot persists a snapshot and returns its encoded size. Saving at
// an already-snapshotted sequence overwrites: a retake supersedes the
// earlier attempt.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return len(data), err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after an integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, policy_id, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.PolicyID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// ToEnvelope rebuilds the in-memory envelope from a stored event row.
func (e *EventRow) ToEnvelope() (*event.EventEnvelope, error) {
	env := &event.EventEnvelope{
		Sequence:       e.Sequence,
		IdempotencyKey: e.IdempotencyKey,
		EventType:      event.ParseEventType(e.EventType),
		Timestamp:      e.Timestamp,
		Payload:        e.Payload,
	}
	if env.EventType == event.EventTypeUnknown {
		return nil, fmt.Errorf("event %d: unknown event type %q", e.Sequence, e.EventType)
	}
	if len(e.StateHash) != 32 || len(e.PrevHash) != 32 {
		return nil, fmt.Errorf("event %d: malformed hash", e.Sequence)
	}
	copy(env.StateHash[:], e.StateHash)
	copy(env.PrevHash[:], e.PrevHash)

	if e.PolicyID != nil {
		id, err := uuid.Parse(*e.PolicyID)
		if err != nil {
			return nil, fmt.Errorf("event %d: policy id: %w", e.Sequence, err)
		}
		env.PolicyID = &id
	}
	return env, nil
}
