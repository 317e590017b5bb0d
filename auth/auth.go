// Package auth implements the delegate authorizer consulted by match
// instances before accepting an action from a caller other than the seated
// player. Grants bind (owner, delegate, scope, nonce) so a captured grant
// cannot be replayed.
package auth

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNonceReplayed = errors.New("authorization nonce already used")
	ErrZeroAddress   = errors.New("zero address")
)

type grant struct {
	scope     string
	expiresAt time.Time
}

// DelegateRegistry is an in-process Authorizer implementation.
type DelegateRegistry struct {
	mutex      sync.RWMutex
	grants     map[string]map[string]grant // owner -> delegate -> grant
	usedNonces map[string]struct{}
	clock      func() time.Time
}

func NewDelegateRegistry() *DelegateRegistry {
	return &DelegateRegistry{
		grants:     make(map[string]map[string]grant),
		usedNonces: make(map[string]struct{}),
		clock:      time.Now,
	}
}

// Grant authorizes delegate to act for owner within scope until ttl elapses.
// Each nonce is accepted exactly once.
func (r *DelegateRegistry) Grant(owner, delegate, scope, nonce string, ttl time.Duration) error {
	if owner == "" || delegate == "" {
		return ErrZeroAddress
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, used := r.usedNonces[nonce]; used {
		return ErrNonceReplayed
	}
	r.usedNonces[nonce] = struct{}{}

	if r.grants[owner] == nil {
		r.grants[owner] = make(map[string]grant)
	}
	r.grants[owner][delegate] = grant{
		scope:     scope,
		expiresAt: r.clock().Add(ttl),
	}
	return nil
}

// Revoke removes a delegate's authorization immediately.
func (r *DelegateRegistry) Revoke(owner, delegate string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.grants[owner], delegate)
}

// ValidateDelegate reports whether caller currently holds an unexpired grant
// from owner. A failed validation must never be bypassed by callers.
func (r *DelegateRegistry) ValidateDelegate(owner, caller string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	g, ok := r.grants[owner][caller]
	if !ok {
		return false
	}
	return r.clock().Before(g.expiresAt)
}
