package runtime

import (
	"sync"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
)

// AccountLocks serializes transactions that write the same account.
// Writers hold a key exclusively, readers share it. Keys are always
// acquired in sorted order so two transactions cannot deadlock.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[types.Pubkey]*keyLock
}

type keyLock struct {
	sync.RWMutex
	refs int
}

// NewAccountLocks creates an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[types.Pubkey]*keyLock)}
}

// LockSet is a set of held locks returned by Acquire.
type LockSet struct {
	table *AccountLocks
	keys  []types.Pubkey
	write map[types.Pubkey]bool
}

// Acquire blocks until every key is locked, write locks for keys marked true.
func (l *AccountLocks) Acquire(keys []types.Pubkey, writable map[types.Pubkey]bool) *LockSet {
	sorted := append([]types.Pubkey(nil), keys...)
	accounts.SortPubkeys(sorted)
	sorted = dedupSorted(sorted)

	entries := make([]*keyLock, len(sorted))
	l.mu.Lock()
	for i, k := range sorted {
		kl, ok := l.locks[k]
		if !ok {
			kl = &keyLock{}
			l.locks[k] = kl
		}
		kl.refs++
		entries[i] = kl
	}
	l.mu.Unlock()

	for i, k := range sorted {
		if writable[k] {
			entries[i].Lock()
		} else {
			entries[i].RLock()
		}
	}
	return &LockSet{table: l, keys: sorted, write: writable}
}

// Release unlocks every key in reverse order.
func (s *LockSet) Release() {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	for i := len(s.keys) - 1; i >= 0; i-- {
		k := s.keys[i]
		kl := s.table.locks[k]
		if s.write[k] {
			kl.Unlock()
		} else {
			kl.RUnlock()
		}
		kl.refs--
		if kl.refs == 0 {
			delete(s.table.locks, k)
		}
	}
}

// Held returns the number of keys currently tracked.
func (l *AccountLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func dedupSorted(keys []types.Pubkey) []types.Pubkey {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
