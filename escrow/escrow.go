// Package escrow is the in-process value-transfer layer. Each match escrows
// stakes on a dedicated account that only the owning instance debits, through
// prize distribution or cancellation refunds.
package escrow

import (
	"errors"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAddress       = errors.New("zero address")
)

// MatchAccount returns the escrow account address for a match.
func MatchAccount(matchID string) string {
	return "escrow:" + matchID
}

// Bank is a minimal ledger of address balances. Any external stake asset can
// be substituted behind the same deposit-exact / pay-out surface.
type Bank struct {
	mutex    sync.RWMutex
	accounts map[string]uint64
}

func NewBank() *Bank {
	return &Bank{
		accounts: make(map[string]uint64),
	}
}

// Credit funds an account from outside the ledger.
func (b *Bank) Credit(addr string, amount uint64) error {
	if addr == "" {
		return ErrZeroAddress
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.accounts[addr] += amount
	return nil
}

// Balance returns the current balance of addr.
func (b *Bank) Balance(addr string) uint64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.accounts[addr]
}

// Transfer moves amount from one account to another atomically.
func (b *Bank) Transfer(from, to string, amount uint64) error {
	if from == "" || to == "" {
		return ErrZeroAddress
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.accounts[from] < amount {
		return ErrInsufficientFunds
	}
	b.accounts[from] -= amount
	b.accounts[to] += amount
	return nil
}
