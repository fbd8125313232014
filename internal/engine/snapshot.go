package engine

import (
	"github.com/google/uuid"

	"CoverPool/internal/claims"
	"CoverPool/internal/ledger"
	"CoverPool/internal/policy"
)

// SnapshotState captures everything needed to rebuild the engine without
// replaying the full event log. Sequence is the LAST applied sequence;
// restore resumes at Sequence+1 with the hash chain re-anchored at
// StateHash.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	JournalSequence int64

	Balances map[ledger.AccountKey]int64

	Policies []policy.Policy
	Payments []policy.PaymentRecord

	PoolBalance    uint64
	PoolShares     uint64
	PoolCoverage   uint64
	PoolClaimsPaid uint64
	Holders        map[uuid.UUID]uint64

	Proposals []claims.Proposal
	Voters    map[uuid.UUID][]uuid.UUID

	Params Params

	IdempotencyKeys []string
}

// CreateSnapshotState copies the full engine state under the lock.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &SnapshotState{
		Sequence:        e.sequence - 1,
		StateHash:       e.hasher.GetPrevHash(),
		JournalSequence: e.journalGen.Sequence(),
		Balances:        e.tracker.Snapshot(),
		PoolBalance:     e.pool.Balance(),
		PoolShares:      e.pool.TotalShares(),
		PoolCoverage:    e.pool.TotalCoverage(),
		PoolClaimsPaid:  e.pool.ClaimsPaid(),
		Holders:         e.pool.Holders(),
		Voters:          e.claimsEng.Voters(),
		Params:          e.params,
		IdempotencyKeys: e.idempotency.Keys(),
	}

	for _, p := range e.policies.GetAll() {
		snap.Policies = append(snap.Policies, *p)
		snap.Payments = append(snap.Payments, e.policies.Payments(p.ID)...)
	}
	for _, prop := range e.claimsEng.GetAll() {
		snap.Proposals = append(snap.Proposals, *prop)
	}

	return snap
}

// RestoreFromSnapshot rebuilds engine state. Must run before the engine
// serves any operation.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sequence = snap.Sequence + 1
	e.hasher.SetPrevHash(snap.StateHash)
	e.journalGen.SetSequence(snap.JournalSequence)
	e.tracker.RestoreBalances(snap.Balances)

	e.activePolicies = 0
	for i := range snap.Policies {
		p := snap.Policies[i]
		e.policies.SetPolicy(&p)
		if p.Active {
			e.activePolicies++
		}
	}
	for _, rec := range snap.Payments {
		e.policies.AppendPayment(rec)
	}

	e.pool.Restore(snap.PoolBalance, snap.PoolShares, snap.PoolCoverage, snap.PoolClaimsPaid, snap.Holders)

	e.openProposals = 0
	for i := range snap.Proposals {
		prop := snap.Proposals[i]
		e.claimsEng.SetProposal(&prop)
		if !prop.Executed {
			e.openProposals++
		}
	}
	for proposalID, voters := range snap.Voters {
		for _, voter := range voters {
			e.claimsEng.RestoreVoter(proposalID, voter)
		}
	}

	e.params = snap.Params
	e.idempotency.WarmFromKeys(snap.IdempotencyKeys)

	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(snap.Sequence))
		e.updateStateGauges()
	}

	e.log.Info().
		Int64("sequence", snap.Sequence).
		Int("policies", len(snap.Policies)).
		Int("proposals", len(snap.Proposals)).
		Msg("state restored from snapshot")
}
