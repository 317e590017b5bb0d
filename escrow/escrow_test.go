package escrow

import (
	"errors"
	"testing"
)

func TestBank_CreditAndBalance(t *testing.T) {
	bank := NewBank()

	if err := bank.Credit("0xA", 100); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if err := bank.Credit("0xA", 50); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if got := bank.Balance("0xA"); got != 150 {
		t.Errorf("expected balance 150, got %d", got)
	}
	if got := bank.Balance("0xUnknown"); got != 0 {
		t.Errorf("unknown account should be empty, got %d", got)
	}
}

func TestBank_Transfer(t *testing.T) {
	bank := NewBank()
	bank.Credit("0xA", 100)

	if err := bank.Transfer("0xA", "0xB", 60); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := bank.Balance("0xA"); got != 40 {
		t.Errorf("expected 40 left, got %d", got)
	}
	if got := bank.Balance("0xB"); got != 60 {
		t.Errorf("expected 60 received, got %d", got)
	}
}

func TestBank_TransferInsufficient(t *testing.T) {
	bank := NewBank()
	bank.Credit("0xA", 10)

	err := bank.Transfer("0xA", "0xB", 11)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if bank.Balance("0xA") != 10 || bank.Balance("0xB") != 0 {
		t.Error("balances should be unchanged after a failed transfer")
	}
}

func TestBank_ZeroAddressRejected(t *testing.T) {
	bank := NewBank()
	if err := bank.Credit("", 10); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("expected ErrZeroAddress from credit, got %v", err)
	}
	if err := bank.Transfer("", "0xB", 1); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("expected ErrZeroAddress from transfer, got %v", err)
	}
}

func TestMatchAccount_Distinct(t *testing.T) {
	if MatchAccount("a") == MatchAccount("b") {
		t.Error("different matches must map to different escrow accounts")
	}
}
