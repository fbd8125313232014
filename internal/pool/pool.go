package pool

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	fpmath "CoverPool/internal/math"
)

var (
	ErrInvalidAmount           = errors.New("amount must be non-zero")
	ErrZeroShares              = errors.New("deposit too small to mint shares")
	ErrInsufficientShares      = errors.New("insufficient share balance")
	ErrInsufficientPoolBalance = errors.New("insufficient pool balance")
	ErrEmptyPool               = errors.New("pool is empty")
)

// Accounting tracks the shared liquidity pool: its balance, LP share
// supply, outstanding coverage exposure, and lifetime claims paid. All
// amounts are uint64 with checked arithmetic; divisions floor. Not safe
// for concurrent use: the engine serializes all access.
type Accounting struct {
	balance       uint64
	totalShares   uint64
	totalCoverage uint64
	claimsPaid    uint64
	shares        map[uuid.UUID]uint64
}

func NewAccounting() *Accounting {
	return &Accounting{
		shares: make(map[uuid.UUID]uint64),
	}
}

func (a *Accounting) Balance() uint64       { return a.balance }
func (a *Accounting) TotalShares() uint64   { return a.totalShares }
func (a *Accounting) TotalCoverage() uint64 { return a.totalCoverage }
func (a *Accounting) ClaimsPaid() uint64    { return a.claimsPaid }

// SharesOf returns a provider's share balance.
func (a *Accounting) SharesOf(provider uuid.UUID) uint64 {
	return a.shares[provider]
}

// Deposit mints shares for a liquidity contribution. Share math uses the
// pre-credit balance: shares = amount * totalShares / balance, floored.
// The first deposit bootstraps the pool at one share per unit, as does a
// deposit into a pool whose balance was fully drained by claims:
// existing shares are worthless at that point and the depositor
// recapitalizes at par.
func (a *Accounting) Deposit(provider uuid.UUID, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	var minted uint64
	if a.totalShares == 0 || a.balance == 0 {
		minted = amount
	} else {
		var err error
		minted, err = fpmath.MulDiv(amount, a.totalShares, a.balance)
		if err != nil {
			return 0, fmt.Errorf("share mint: %w", err)
		}
		if minted == 0 {
			return 0, ErrZeroShares
		}
	}

	newBalance, err := fpmath.CheckedAdd(a.balance, amount)
	if err != nil {
		return 0, fmt.Errorf("pool balance: %w", err)
	}
	newTotal, err := fpmath.CheckedAdd(a.totalShares, minted)
	if err != nil {
		return 0, fmt.Errorf("total shares: %w", err)
	}
	holderShares, err := fpmath.CheckedAdd(a.shares[provider], minted)
	if err != nil {
		return 0, fmt.Errorf("holder shares: %w", err)
	}

	a.balance = newBalance
	a.totalShares = newTotal
	a.shares[provider] = holderShares

	return minted, nil
}

// PreviewDeposit computes the shares a deposit would mint without
// mutating state. Callers use it to validate before funds move.
func (a *Accounting) PreviewDeposit(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if a.totalShares == 0 || a.balance == 0 {
		return amount, nil
	}
	minted, err := fpmath.MulDiv(amount, a.totalShares, a.balance)
	if err != nil {
		return 0, fmt.Errorf("share mint: %w", err)
	}
	if minted == 0 {
		return 0, ErrZeroShares
	}
	return minted, nil
}

// PreviewWithdraw computes the payout a redemption would produce without
// mutating state.
func (a *Accounting) PreviewWithdraw(provider uuid.UUID, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	if a.balance == 0 || a.totalShares == 0 {
		return 0, ErrEmptyPool
	}
	held := a.shares[provider]
	if shares > held {
		return 0, fmt.Errorf("have %d, redeem %d: %w", held, shares, ErrInsufficientShares)
	}
	amountOut, err := fpmath.MulDiv(shares, a.balance, a.totalShares)
	if err != nil {
		return 0, fmt.Errorf("share value: %w", err)
	}
	return amountOut, nil
}

// Withdraw redeems shares for their proportional pool value:
// amountOut = shares * balance / totalShares, floored. Redemptions
// against a drained pool are rejected rather than burning shares for
// nothing: the shares keep their claim on future premium inflows.
func (a *Accounting) Withdraw(provider uuid.UUID, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	if a.balance == 0 || a.totalShares == 0 {
		return 0, ErrEmptyPool
	}
	held := a.shares[provider]
	if shares > held {
		return 0, fmt.Errorf("have %d, redeem %d: %w", held, shares, ErrInsufficientShares)
	}

	amountOut, err := fpmath.MulDiv(shares, a.balance, a.totalShares)
	if err != nil {
		return 0, fmt.Errorf("share value: %w", err)
	}

	newBalance, err := fpmath.CheckedSub(a.balance, amountOut)
	if err != nil {
		return 0, fmt.Errorf("pool balance: %w", err)
	}
	newTotal, err := fpmath.CheckedSub(a.totalShares, shares)
	if err != nil {
		return 0, fmt.Errorf("total shares: %w", err)
	}

	a.balance = newBalance
	a.totalShares = newTotal
	if held == shares {
		delete(a.shares, provider)
	} else {
		a.shares[provider] = held - shares
	}

	return amountOut, nil
}

// ApplyFee splits an inflow into the pool's net and the protocol fee:
// fee = amount * feeBps / 10000, floored.
func ApplyFee(amount uint64, feeBps uint32) (net uint64, fee uint64, err error) {
	fee, err = fpmath.Bps(amount, feeBps)
	if err != nil {
		return 0, 0, fmt.Errorf("fee: %w", err)
	}
	net, err = fpmath.CheckedSub(amount, fee)
	if err != nil {
		return 0, 0, fmt.Errorf("net: %w", err)
	}
	return net, fee, nil
}

// Credit adds premium income (or any non-share inflow) to the pool.
// Premium credits dilute nothing: share value simply rises.
func (a *Accounting) Credit(amount uint64) error {
	newBalance, err := fpmath.CheckedAdd(a.balance, amount)
	if err != nil {
		return fmt.Errorf("pool credit: %w", err)
	}
	a.balance = newBalance
	return nil
}

// Debit removes a payout from the pool, failing when it cannot cover it.
func (a *Accounting) Debit(amount uint64) error {
	if amount > a.balance {
		return fmt.Errorf("have %d, need %d: %w", a.balance, amount, ErrInsufficientPoolBalance)
	}
	a.balance -= amount
	return nil
}

// CanCover reports whether the pool can fund a payout of amount.
func (a *Accounting) CanCover(amount uint64) bool {
	return amount <= a.balance
}

// AddExposure registers new coverage written against the pool.
func (a *Accounting) AddExposure(coverage uint64) error {
	total, err := fpmath.CheckedAdd(a.totalCoverage, coverage)
	if err != nil {
		return fmt.Errorf("exposure: %w", err)
	}
	a.totalCoverage = total
	return nil
}

// ReleaseExposure retires coverage when a policy ends.
func (a *Accounting) ReleaseExposure(coverage uint64) error {
	total, err := fpmath.CheckedSub(a.totalCoverage, coverage)
	if err != nil {
		return fmt.Errorf("exposure: %w", err)
	}
	a.totalCoverage = total
	return nil
}

// RecordClaimPaid accumulates the lifetime payout counter.
func (a *Accounting) RecordClaimPaid(amount uint64) error {
	total, err := fpmath.CheckedAdd(a.claimsPaid, amount)
	if err != nil {
		return fmt.Errorf("claims paid: %w", err)
	}
	a.claimsPaid = total
	return nil
}

// Holders returns a copy of all share balances (snapshots, queries).
func (a *Accounting) Holders() map[uuid.UUID]uint64 {
	out := make(map[uuid.UUID]uint64, len(a.shares))
	for k, v := range a.shares {
		out[k] = v
	}
	return out
}

// Restore rebuilds pool state from a snapshot.
func (a *Accounting) Restore(balance, totalShares, totalCoverage, claimsPaid uint64, shares map[uuid.UUID]uint64) {
	a.balance = balance
	a.totalShares = totalShares
	a.totalCoverage = totalCoverage
	a.claimsPaid = claimsPaid
	a.shares = make(map[uuid.UUID]uint64, len(shares))
	for k, v := range shares {
		a.shares[k] = v
	}
}

// ValidateShareSum checks Σ holder shares == totalShares.
func (a *Accounting) ValidateShareSum() error {
	var sum uint64
	for _, s := range a.shares {
		next, err := fpmath.CheckedAdd(sum, s)
		if err != nil {
			return fmt.Errorf("share sum: %w", err)
		}
		sum = next
	}
	if sum != a.totalShares {
		return fmt.Errorf("share sum %d != total shares %d", sum, a.totalShares)
	}
	return nil
}
