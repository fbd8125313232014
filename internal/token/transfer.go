package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	fpmath "CoverPool/internal/math"
)

var (
	ErrTransferFailed    = errors.New("token transfer failed")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
)

// Transferer moves quote-asset tokens across the system boundary. Calls
// are treated as atomic: a failure aborts the surrounding operation
// before any state mutation is committed. The host wires this to a real
// custody or settlement system.
type Transferer interface {
	// TransferFrom pulls amount from a member's wallet into the system.
	TransferFrom(from uuid.UUID, amount uint64) error

	// TransferTo pays amount out of the system to a member's wallet.
	TransferTo(to uuid.UUID, amount uint64) error
}

// MemoryTransferer is an in-process wallet ledger for dev mode and tests.
type MemoryTransferer struct {
	mu       sync.Mutex
	balances map[uuid.UUID]uint64
}

func NewMemoryTransferer() *MemoryTransferer {
	return &MemoryTransferer{
		balances: make(map[uuid.UUID]uint64),
	}
}

// Mint funds a wallet (test and dev setup).
func (m *MemoryTransferer) Mint(member uuid.UUID, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[member] += amount
}

// BalanceOf returns a wallet balance.
func (m *MemoryTransferer) BalanceOf(member uuid.UUID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[member]
}

func (m *MemoryTransferer) TransferFrom(from uuid.UUID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.balances[from]
	if amount > balance {
		return fmt.Errorf("wallet %s has %d, need %d: %w", from, balance, amount, ErrInsufficientFunds)
	}
	m.balances[from] = balance - amount
	return nil
}

func (m *MemoryTransferer) TransferTo(to uuid.UUID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, err := fpmath.CheckedAdd(m.balances[to], amount)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", to, err)
	}
	m.balances[to] = balance
	return nil
}

// FailingTransferer always fails. Used in tests to verify operations
// abort cleanly when the transfer boundary rejects.
type FailingTransferer struct{}

func (FailingTransferer) TransferFrom(uuid.UUID, uint64) error {
	return ErrTransferFailed
}

func (FailingTransferer) TransferTo(uuid.UUID, uint64) error {
	return ErrTransferFailed
}
