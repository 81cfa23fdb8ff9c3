package services

import "sync"

// RuleLocks serializes work on a single rule. Locks for distinct rules are
// independent.
type RuleLocks struct {
	mu    sync.Mutex
	locks map[int64]*ruleLock
}

type ruleLock struct {
	mu   sync.Mutex
	refs int
}

func NewRuleLocks() *RuleLocks {
	return &RuleLocks{locks: make(map[int64]*ruleLock)}
}

// Lock blocks until the rule's lock is held and returns its release func.
func (l *RuleLocks) Lock(ruleID int64) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[ruleID]
	if !ok {
		rl = &ruleLock{}
		l.locks[ruleID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, ruleID)
		}
		l.mu.Unlock()
	}
}

// held reports how many rule locks are currently in use or awaited.
func (l *RuleLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
