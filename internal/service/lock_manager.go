package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when locks could not be acquired within the bound.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// LockSet names the sections and students an atomic step touches.
type LockSet struct {
	Sections []string
	Students []string
}

// keys returns the global acquisition order: every section before any
// student, each kind ascending, duplicates removed.
func (s LockSet) keys() []string {
	keys := make([]string, 0, len(s.Sections)+len(s.Students))
	keys = append(keys, orderedKeys("section:", s.Sections)...)
	keys = append(keys, orderedKeys("student:", s.Students)...)
	return keys
}

func orderedKeys(prefix string, ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, prefix+id)
	}
	sort.Strings(out)
	return out
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// LockManager hands out per-section and per-student mutual exclusion with a
// bounded wait. Lock entries are reference counted and dropped when idle.
type LockManager struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewLockManager builds a lock manager with the given acquisition bound.
func NewLockManager(timeout time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &LockManager{timeout: timeout, locks: make(map[string]*keyLock)}
}

// Acquire takes every lock in set in global order and returns a release
// function. On timeout nothing remains held and ErrLockTimeout is returned.
func (m *LockManager) Acquire(ctx context.Context, set LockSet) (func(), error) {
	keys := set.keys()
	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.unlock(held[i])
		}
	}

	for _, key := range keys {
		lock := m.ref(key)
		if err := lock.sem.Acquire(waitCtx, 1); err != nil {
			m.unref(key)
			release()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Active returns the number of lock entries currently referenced.
func (m *LockManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *LockManager) ref(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyLock{sem: semaphore.NewWeighted(1)}
		m.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (m *LockManager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(m.locks, key)
	}
}

func (m *LockManager) unlock(key string) {
	m.mu.Lock()
	lock := m.locks[key]
	m.mu.Unlock()
	if lock != nil {
		lock.sem.Release(1)
	}
	m.unref(key)
}

func lockTargets(sectionID string, students ...string) LockSet {
	return LockSet{Sections: []string{sectionID}, Students: append([]string(nil), students...)}
}
