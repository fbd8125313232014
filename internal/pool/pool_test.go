package pool_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/pool"
)

// ============================================================================
// Test: Deposit / share minting
// ============================================================================

func TestDeposit_Bootstrap(t *testing.T) {
	a := pool.NewAccounting()
	lp := uuid.New()

	minted, err := a.Deposit(lp, 1_000)
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if minted != 1_000 {
		t.Errorf("bootstrap shares: got %d, want 1_000", minted)
	}
	if a.Balance() != 1_000 || a.TotalShares() != 1_000 {
		t.Errorf("pool state: balance=%d shares=%d", a.Balance(), a.TotalShares())
	}
}

func TestDeposit_ProportionalAfterAppreciation(t *testing.T) {
	a := pool.NewAccounting()
	first := uuid.New()
	second := uuid.New()

	if _, err := a.Deposit(first, 1_000); err != nil {
		t.Fatal(err)
	}
	// Premium income appreciates share value without minting
	if err := a.Credit(1_000); err != nil {
		t.Fatal(err)
	}

	// Pool is worth 2_000 backing 1_000 shares: a 500 deposit mints 250
	minted, err := a.Deposit(second, 500)
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if minted != 250 {
		t.Errorf("minted: got %d, want 250", minted)
	}
}

func TestDeposit_ZeroAmount_Fails(t *testing.T) {
	a := pool.NewAccounting()

	_, err := a.Deposit(uuid.New(), 0)
	if !errors.Is(err, pool.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestDeposit_RecapitalizesDrainedPool(t *testing.T) {
	// Claims can drain the balance to zero while shares stay outstanding.
	// The next deposit must bootstrap at par instead of dividing by the
	// zero balance, or the pool could never be recapitalized.
	a := pool.NewAccounting()
	first := uuid.New()
	second := uuid.New()

	if _, err := a.Deposit(first, 100); err != nil {
		t.Fatal(err)
	}
	if err := a.Debit(100); err != nil {
		t.Fatal(err)
	}

	minted, err := a.Deposit(second, 50)
	if err != nil {
		t.Fatalf("Deposit into drained pool failed: %v", err)
	}
	if minted != 50 {
		t.Errorf("minted: got %d, want 50", minted)
	}
	if a.Balance() != 50 {
		t.Errorf("balance: got %d, want 50", a.Balance())
	}
	if a.TotalShares() != 150 {
		t.Errorf("total shares: got %d, want 150", a.TotalShares())
	}
	if err := a.ValidateShareSum(); err != nil {
		t.Fatal(err)
	}

	if preview, err := a.PreviewDeposit(50); err != nil || preview != 50 {
		t.Errorf("PreviewDeposit on drained pool: got %d, %v; want 50, nil", preview, err)
	}
}

func TestDeposit_DustMintsZeroShares_Fails(t *testing.T) {
	a := pool.NewAccounting()
	lp := uuid.New()

	if _, err := a.Deposit(lp, 10); err != nil {
		t.Fatal(err)
	}
	// Appreciate so one unit is worth less than one share
	if err := a.Credit(1_000_000); err != nil {
		t.Fatal(err)
	}

	_, err := a.Deposit(uuid.New(), 1)
	if !errors.Is(err, pool.ErrZeroShares) {
		t.Errorf("got %v, want ErrZeroShares", err)
	}
}

// ============================================================================
// Test: Withdraw
// ============================================================================

func TestWithdraw_FullRoundTrip(t *testing.T) {
	a := pool.NewAccounting()
	lp := uuid.New()

	minted, err := a.Deposit(lp, 5_000)
	if err != nil {
		t.Fatal(err)
	}

	out, err := a.Withdraw(lp, minted)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if out != 5_000 {
		t.Errorf("round trip: got %d, want 5_000", out)
	}
	if a.TotalShares() != 0 || a.Balance() != 0 {
		t.Errorf("pool should be empty: balance=%d shares=%d", a.Balance(), a.TotalShares())
	}
	if a.SharesOf(lp) != 0 {
		t.Errorf("holder shares should be zero, got %d", a.SharesOf(lp))
	}
}

func TestWithdraw_RoundTripLossBounded(t *testing.T) {
	// Two floor divisions (mint, redeem) lose at most 1 unit each.
	a := pool.NewAccounting()
	anchor := uuid.New()
	lp := uuid.New()

	if _, err := a.Deposit(anchor, 1_000); err != nil {
		t.Fatal(err)
	}
	if err := a.Credit(777); err != nil { // Uneven share price
		t.Fatal(err)
	}

	deposit := uint64(333)
	minted, err := a.Deposit(lp, deposit)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Withdraw(lp, minted)
	if err != nil {
		t.Fatal(err)
	}

	if out > deposit {
		t.Errorf("withdrawal %d exceeds deposit %d", out, deposit)
	}
	// Loss bound: one unit per floor division, and share price here is
	// under 2 units per share, so the mint floor costs < 2 units of value.
	if deposit-out > 2 {
		t.Errorf("round-trip loss too large: deposited %d, got back %d", deposit, out)
	}
}

func TestWithdraw_MoreThanHeld_Fails(t *testing.T) {
	a := pool.NewAccounting()
	lp := uuid.New()

	if _, err := a.Deposit(lp, 100); err != nil {
		t.Fatal(err)
	}

	_, err := a.Withdraw(lp, 101)
	if !errors.Is(err, pool.ErrInsufficientShares) {
		t.Errorf("got %v, want ErrInsufficientShares", err)
	}
}

func TestWithdraw_ZeroShares_Fails(t *testing.T) {
	a := pool.NewAccounting()

	_, err := a.Withdraw(uuid.New(), 0)
	if !errors.Is(err, pool.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestWithdraw_DrainedPool_Fails(t *testing.T) {
	// Redeeming against a zero balance must not burn the holder's shares
	// for a zero payout; the shares keep their claim on future inflows.
	a := pool.NewAccounting()
	lp := uuid.New()

	if _, err := a.Deposit(lp, 100); err != nil {
		t.Fatal(err)
	}
	if err := a.Debit(100); err != nil {
		t.Fatal(err)
	}

	_, err := a.Withdraw(lp, 100)
	if !errors.Is(err, pool.ErrEmptyPool) {
		t.Errorf("got %v, want ErrEmptyPool", err)
	}
	if a.SharesOf(lp) != 100 {
		t.Errorf("shares must survive a rejected withdrawal, got %d", a.SharesOf(lp))
	}
	if a.TotalShares() != 100 {
		t.Errorf("total shares: got %d, want 100", a.TotalShares())
	}

	if _, err := a.PreviewWithdraw(lp, 100); !errors.Is(err, pool.ErrEmptyPool) {
		t.Errorf("PreviewWithdraw: got %v, want ErrEmptyPool", err)
	}
}

// ============================================================================
// Test: Share sum invariant
// ============================================================================

func TestShareSum_HoldsAcrossInterleaving(t *testing.T) {
	a := pool.NewAccounting()
	lps := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	steps := []struct {
		lp      int
		deposit uint64 // 0 means withdraw half of holdings
	}{
		{0, 1_000},
		{1, 333},
		{2, 777},
		{0, 0},
		{1, 250},
		{2, 0},
		{0, 41},
	}

	for i, step := range steps {
		lp := lps[step.lp]
		if step.deposit > 0 {
			if _, err := a.Deposit(lp, step.deposit); err != nil {
				t.Fatalf("step %d deposit: %v", i, err)
			}
		} else {
			half := a.SharesOf(lp) / 2
			if half == 0 {
				continue
			}
			if _, err := a.Withdraw(lp, half); err != nil {
				t.Fatalf("step %d withdraw: %v", i, err)
			}
		}

		if err := a.ValidateShareSum(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

// ============================================================================
// Test: Fees and pool flow
// ============================================================================

func TestApplyFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		feeBps  uint32
		wantNet uint64
		wantFee uint64
	}{
		{"one percent", 1_000, 100, 990, 10},
		{"floors fee", 999, 100, 990, 9},
		{"zero bps", 1_000, 0, 1_000, 0},
		{"full bps", 1_000, 10_000, 0, 1_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee, err := pool.ApplyFee(tt.amount, tt.feeBps)
			if err != nil {
				t.Fatalf("ApplyFee failed: %v", err)
			}
			if net != tt.wantNet || fee != tt.wantFee {
				t.Errorf("got net=%d fee=%d, want net=%d fee=%d", net, fee, tt.wantNet, tt.wantFee)
			}
		})
	}
}

func TestDebit_Insufficient_Fails(t *testing.T) {
	a := pool.NewAccounting()
	if err := a.Credit(100); err != nil {
		t.Fatal(err)
	}

	err := a.Debit(101)
	if !errors.Is(err, pool.ErrInsufficientPoolBalance) {
		t.Errorf("got %v, want ErrInsufficientPoolBalance", err)
	}
	if a.Balance() != 100 {
		t.Errorf("failed debit must not change balance, got %d", a.Balance())
	}
}

func TestExposure_ReleaseBelowZero_Fails(t *testing.T) {
	a := pool.NewAccounting()
	if err := a.AddExposure(500); err != nil {
		t.Fatal(err)
	}
	if err := a.ReleaseExposure(500); err != nil {
		t.Fatal(err)
	}

	if err := a.ReleaseExposure(1); err == nil {
		t.Error("releasing more exposure than tracked should fail")
	}
}
