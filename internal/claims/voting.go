package claims

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Quorum is the minimum total votes before a proposal can be finalized.
const Quorum = 3

var (
	ErrNotFound        = errors.New("claim proposal not found")
	ErrAlreadyExecuted = errors.New("claim proposal already executed")
	ErrAlreadyVoted    = errors.New("voter has already voted")
	ErrQuorumNotMet    = errors.New("vote quorum not met")
	ErrInvalidAmount   = errors.New("claim amount must be non-zero")
)

// VoteScope controls how the has-voted ledger is keyed.
type VoteScope int

const (
	// VoteScopeGlobal allows each voter a single vote across ALL
	// proposals, ever. This mirrors the original product behavior and is
	// the default.
	VoteScopeGlobal VoteScope = iota

	// VoteScopePerClaim allows one vote per voter per proposal.
	VoteScopePerClaim
)

func ParseVoteScope(s string) (VoteScope, error) {
	switch s {
	case "", "global":
		return VoteScopeGlobal, nil
	case "per_claim":
		return VoteScopePerClaim, nil
	default:
		return VoteScopeGlobal, fmt.Errorf("unknown vote scope %q", s)
	}
}

func (vs VoteScope) String() string {
	if vs == VoteScopePerClaim {
		return "per_claim"
	}
	return "global"
}

// Proposal is a community claim awaiting votes. Executed is terminal and
// is set on every quorum-met finalization, paid or not.
type Proposal struct {
	ID        uuid.UUID
	PolicyID  uuid.UUID
	Claimant  uuid.UUID
	Amount    uint64
	Reason    string
	YesVotes  uint32
	NoVotes   uint32
	Executed  bool
	CreatedAt int64
	Version   int64
}

// TotalVotes returns the combined tally.
func (p *Proposal) TotalVotes() uint32 {
	return p.YesVotes + p.NoVotes
}

// Engine manages claim proposals and the vote ledger. Not safe for
// concurrent use: the insurance engine serializes all access.
type Engine struct {
	scope       VoteScope
	proposals   map[uuid.UUID]*Proposal
	globalVoted map[uuid.UUID]bool
	votedBy     map[uuid.UUID]map[uuid.UUID]bool // proposal -> voter set
}

func NewEngine(scope VoteScope) *Engine {
	return &Engine{
		scope:       scope,
		proposals:   make(map[uuid.UUID]*Proposal),
		globalVoted: make(map[uuid.UUID]bool),
		votedBy:     make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (e *Engine) Scope() VoteScope { return e.scope }

// Get returns a proposal or ErrNotFound.
func (e *Engine) Get(proposalID uuid.UUID) (*Proposal, error) {
	p := e.proposals[proposalID]
	if p == nil {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrNotFound)
	}
	return p, nil
}

// Submit opens a new proposal. Policy validity (active, uncanceled,
// amount within coverage) is checked by the insurance engine.
func (e *Engine) Submit(policyID, claimant uuid.UUID, amount uint64, reason string, now int64) (*Proposal, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	p := &Proposal{
		ID:        uuid.New(),
		PolicyID:  policyID,
		Claimant:  claimant,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
		Version:   1,
	}
	e.proposals[p.ID] = p

	return p, nil
}

// Vote records one vote under the configured scope.
func (e *Engine) Vote(proposalID, voter uuid.UUID, approve bool) (*Proposal, error) {
	p, err := e.Get(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Executed {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrAlreadyExecuted)
	}
	if e.hasVoted(proposalID, voter) {
		return nil, fmt.Errorf("voter %s: %w", voter, ErrAlreadyVoted)
	}

	if approve {
		p.YesVotes++
	} else {
		p.NoVotes++
	}
	p.Version++
	e.markVoted(proposalID, voter)

	return p, nil
}

// Finalize closes voting once quorum is met. Approved iff yes > no; a tie
// is not approved. Executed is set on every quorum-met outcome — the
// payout (and its possible failure) is the insurance engine's concern.
func (e *Engine) Finalize(proposalID uuid.UUID) (bool, *Proposal, error) {
	p, err := e.Get(proposalID)
	if err != nil {
		return false, nil, err
	}
	if p.Executed {
		return false, nil, fmt.Errorf("proposal %s: %w", proposalID, ErrAlreadyExecuted)
	}
	if p.TotalVotes() < Quorum {
		return false, nil, fmt.Errorf("have %d votes, need %d: %w", p.TotalVotes(), Quorum, ErrQuorumNotMet)
	}

	p.Executed = true
	p.Version++

	return p.YesVotes > p.NoVotes, p, nil
}

func (e *Engine) hasVoted(proposalID, voter uuid.UUID) bool {
	if e.scope == VoteScopeGlobal {
		return e.globalVoted[voter]
	}
	return e.votedBy[proposalID][voter]
}

func (e *Engine) markVoted(proposalID, voter uuid.UUID) {
	if e.scope == VoteScopeGlobal {
		e.globalVoted[voter] = true
		return
	}
	set := e.votedBy[proposalID]
	if set == nil {
		set = make(map[uuid.UUID]bool)
		e.votedBy[proposalID] = set
	}
	set[voter] = true
}

// GetAll returns all proposals (iteration and snapshots).
func (e *Engine) GetAll() []*Proposal {
	result := make([]*Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		result = append(result, p)
	}
	return result
}

// Voters returns the vote ledger keyed by proposal. Under global scope
// the ledger is returned under the zero UUID key.
func (e *Engine) Voters() map[uuid.UUID][]uuid.UUID {
	out := make(map[uuid.UUID][]uuid.UUID)
	if e.scope == VoteScopeGlobal {
		for voter := range e.globalVoted {
			out[uuid.Nil] = append(out[uuid.Nil], voter)
		}
		return out
	}
	for pid, set := range e.votedBy {
		for voter := range set {
			out[pid] = append(out[pid], voter)
		}
	}
	return out
}

// SetProposal directly installs a proposal (restore and replay).
func (e *Engine) SetProposal(p *Proposal) {
	e.proposals[p.ID] = p
}

// RestoreVoter directly marks a voter (restore and replay).
func (e *Engine) RestoreVoter(proposalID, voter uuid.UUID) {
	e.markVoted(proposalID, voter)
}
