package auth

import (
	"errors"
	"testing"
	"time"
)

func TestDelegateRegistry_GrantAndValidate(t *testing.T) {
	reg := NewDelegateRegistry()

	if reg.ValidateDelegate("0xOwner", "0xDelegate") {
		t.Fatal("validation should fail before any grant")
	}
	if err := reg.Grant("0xOwner", "0xDelegate", "play", "nonce-1", time.Hour); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if !reg.ValidateDelegate("0xOwner", "0xDelegate") {
		t.Error("validation should succeed after a grant")
	}
	if reg.ValidateDelegate("0xOther", "0xDelegate") {
		t.Error("grant must not extend to other owners")
	}
}

func TestDelegateRegistry_NonceReplay(t *testing.T) {
	reg := NewDelegateRegistry()
	if err := reg.Grant("0xOwner", "0xDelegate", "play", "nonce-1", time.Hour); err != nil {
		t.Fatal(err)
	}
	err := reg.Grant("0xOwner", "0xOther", "play", "nonce-1", time.Hour)
	if !errors.Is(err, ErrNonceReplayed) {
		t.Fatalf("expected ErrNonceReplayed, got %v", err)
	}
}

func TestDelegateRegistry_Expiry(t *testing.T) {
	reg := NewDelegateRegistry()
	now := time.Now()
	reg.clock = func() time.Time { return now }

	if err := reg.Grant("0xOwner", "0xDelegate", "play", "nonce-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if !reg.ValidateDelegate("0xOwner", "0xDelegate") {
		t.Fatal("grant should be valid before expiry")
	}

	now = now.Add(2 * time.Minute)
	if reg.ValidateDelegate("0xOwner", "0xDelegate") {
		t.Error("grant should be invalid after expiry")
	}
}

func TestDelegateRegistry_Revoke(t *testing.T) {
	reg := NewDelegateRegistry()
	if err := reg.Grant("0xOwner", "0xDelegate", "play", "nonce-1", time.Hour); err != nil {
		t.Fatal(err)
	}
	reg.Revoke("0xOwner", "0xDelegate")
	if reg.ValidateDelegate("0xOwner", "0xDelegate") {
		t.Error("validation should fail after revocation")
	}
}

func TestDelegateRegistry_ZeroAddress(t *testing.T) {
	reg := NewDelegateRegistry()
	if err := reg.Grant("", "0xDelegate", "play", "nonce-1", time.Hour); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("expected ErrZeroAddress, got %v", err)
	}
}
