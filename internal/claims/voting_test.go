package claims_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/claims"
)

func submitProposal(t *testing.T, e *claims.Engine) *claims.Proposal {
	t.Helper()
	p, err := e.Submit(uuid.New(), uuid.New(), 1_000, "hurricane damage", 1700000000)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return p
}

// ============================================================================
// Test: Submit / Vote
// ============================================================================

func TestSubmit_ZeroAmount_Fails(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)

	_, err := e.Submit(uuid.New(), uuid.New(), 0, "x", 1700000000)
	if !errors.Is(err, claims.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestVote_UnknownProposal_Fails(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)

	_, err := e.Vote(uuid.New(), uuid.New(), true)
	if !errors.Is(err, claims.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestVote_Tallies(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	p := submitProposal(t, e)

	if _, err := e.Vote(p.ID, uuid.New(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Vote(p.ID, uuid.New(), false); err != nil {
		t.Fatal(err)
	}

	if p.YesVotes != 1 || p.NoVotes != 1 {
		t.Errorf("tallies: yes=%d no=%d, want 1/1", p.YesVotes, p.NoVotes)
	}
}

func TestVote_GlobalScope_OneVoteAcrossProposals(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	first := submitProposal(t, e)
	second := submitProposal(t, e)
	voter := uuid.New()

	if _, err := e.Vote(first.ID, voter, true); err != nil {
		t.Fatal(err)
	}

	// Same voter on a DIFFERENT proposal is still rejected
	_, err := e.Vote(second.ID, voter, true)
	if !errors.Is(err, claims.ErrAlreadyVoted) {
		t.Errorf("got %v, want ErrAlreadyVoted", err)
	}
}

func TestVote_PerClaimScope_OneVotePerProposal(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopePerClaim)
	first := submitProposal(t, e)
	second := submitProposal(t, e)
	voter := uuid.New()

	if _, err := e.Vote(first.ID, voter, true); err != nil {
		t.Fatal(err)
	}

	// Same proposal rejected, different proposal allowed
	if _, err := e.Vote(first.ID, voter, false); !errors.Is(err, claims.ErrAlreadyVoted) {
		t.Errorf("got %v, want ErrAlreadyVoted", err)
	}
	if _, err := e.Vote(second.ID, voter, true); err != nil {
		t.Errorf("per-claim scope should allow a second proposal: %v", err)
	}
}

// ============================================================================
// Test: Finalize
// ============================================================================

func TestFinalize_TwoYesOneNo_Approved(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	p := submitProposal(t, e)

	for _, approve := range []bool{true, true, false} {
		if _, err := e.Vote(p.ID, uuid.New(), approve); err != nil {
			t.Fatal(err)
		}
	}

	approved, executed, err := e.Finalize(p.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !approved {
		t.Error("2 yes / 1 no should be approved")
	}
	if !executed.Executed {
		t.Error("proposal should be marked executed")
	}
}

func TestFinalize_BelowQuorum_Fails(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	p := submitProposal(t, e)

	for _, approve := range []bool{true, false} {
		if _, err := e.Vote(p.ID, uuid.New(), approve); err != nil {
			t.Fatal(err)
		}
	}

	_, _, err := e.Finalize(p.ID)
	if !errors.Is(err, claims.ErrQuorumNotMet) {
		t.Errorf("got %v, want ErrQuorumNotMet", err)
	}
	if p.Executed {
		t.Error("failed finalization must not mark executed")
	}
}

func TestFinalize_Tie_ExecutedNotApproved(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	p := submitProposal(t, e)

	for _, approve := range []bool{true, true, false, false} {
		if _, err := e.Vote(p.ID, uuid.New(), approve); err != nil {
			t.Fatal(err)
		}
	}

	approved, executed, err := e.Finalize(p.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if approved {
		t.Error("a tie must not be approved")
	}
	if !executed.Executed {
		t.Error("tie with quorum should still execute")
	}
}

func TestFinalize_Twice_Fails(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	p := submitProposal(t, e)

	for i := 0; i < 3; i++ {
		if _, err := e.Vote(p.ID, uuid.New(), true); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := e.Finalize(p.ID); err != nil {
		t.Fatal(err)
	}

	_, _, err := e.Finalize(p.ID)
	if !errors.Is(err, claims.ErrAlreadyExecuted) {
		t.Errorf("got %v, want ErrAlreadyExecuted", err)
	}
}

func TestVote_AfterExecution_Fails(t *testing.T) {
	e := claims.NewEngine(claims.VoteScopeGlobal)
	p := submitProposal(t, e)

	for i := 0; i < 3; i++ {
		if _, err := e.Vote(p.ID, uuid.New(), true); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := e.Finalize(p.ID); err != nil {
		t.Fatal(err)
	}

	_, err := e.Vote(p.ID, uuid.New(), true)
	if !errors.Is(err, claims.ErrAlreadyExecuted) {
		t.Errorf("got %v, want ErrAlreadyExecuted", err)
	}
}
