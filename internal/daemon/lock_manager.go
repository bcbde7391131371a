package daemon

import (
	"context"
	"sync"
	"time"
)

// lockRecord is one named lease (§3 "Lock").
type lockRecord struct {
	holder    string
	acquiredAt time.Time
	expiresAt time.Time
}

func (r lockRecord) live(now time.Time) bool {
	return now.Before(r.expiresAt)
}

// waiter is one pending FIFO entry for a contended lock name.
type waiter struct {
	holder   string
	lease    time.Duration
	deadline time.Time
	result   chan lockOutcome
}

type lockOutcome struct {
	acquired  bool
	expiresAt time.Time
	reason    string // "deadline" when a wait times out
}

// LockManager implements the named-lease operations of §4.6: acquire,
// release, list. Storage is a single mutex-guarded map; hot paths are
// O(1) except FIFO delivery to a contended name's wait list, which is
// O(waiters) on release.
type LockManager struct {
	mu      sync.Mutex
	locks   map[string]lockRecord
	waiters map[string][]*waiter
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewLockManager() *LockManager {
	m := &LockManager{
		locks:   make(map[string]lockRecord),
		waiters: make(map[string][]*waiter),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweep()
	return m
}

// Close stops the background sweeper. Safe to call once.
func (m *LockManager) Close() {
	close(m.done)
	m.wg.Wait()
}

// Acquire implements §4.6's acquire semantics. timeout is the lease
// duration once acquired; when wait is true and the name is
// contended, Acquire blocks (FIFO) until the lock frees, ctx is
// cancelled, or timeout elapses — whichever comes first.
func (m *LockManager) Acquire(ctx context.Context, name, holder string, timeout time.Duration, wait bool) (acquired bool, expiresAt time.Time, reason string) {
	now := time.Now()

	m.mu.Lock()
	rec, exists := m.locks[name]
	if !exists || !rec.live(now) {
		m.locks[name] = lockRecord{holder: holder, acquiredAt: now, expiresAt: now.Add(timeout)}
		m.mu.Unlock()
		return true, m.locks[name].expiresAt, ""
	}
	if rec.holder == holder {
		rec.expiresAt = now.Add(timeout)
		m.locks[name] = rec
		m.mu.Unlock()
		return true, rec.expiresAt, ""
	}
	if !wait {
		m.mu.Unlock()
		return false, time.Time{}, rec.holder
	}

	w := &waiter{holder: holder, lease: timeout, deadline: now.Add(timeout), result: make(chan lockOutcome, 1)}
	m.waiters[name] = append(m.waiters[name], w)
	m.mu.Unlock()

	select {
	case out := <-w.result:
		return out.acquired, out.expiresAt, out.reason
	case <-time.After(timeout):
		m.cancelWaiter(name, w)
		return false, time.Time{}, "deadline"
	case <-ctx.Done():
		m.cancelWaiter(name, w)
		return false, time.Time{}, "deadline"
	}
}

func (m *LockManager) cancelWaiter(name string, target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.waiters[name]
	for i, w := range ws {
		if w == target {
			m.waiters[name] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// Release implements §4.6's release semantics: only the current
// holder may release; a non-holder release is reported, never
// silently ignored.
func (m *LockManager) Release(name, holder string) (released bool, reason string) {
	m.mu.Lock()
	rec, exists := m.locks[name]
	if !exists || !rec.live(time.Now()) {
		m.mu.Unlock()
		return false, "not-holder"
	}
	if rec.holder != holder {
		m.mu.Unlock()
		return false, "not-holder"
	}
	delete(m.locks, name)
	m.mu.Unlock()

	m.handOff(name)
	return true, ""
}

// handOff delivers a freed lock name to its next FIFO waiter, if any.
func (m *LockManager) handOff(name string) {
	m.mu.Lock()
	ws := m.waiters[name]
	for len(ws) > 0 {
		next := ws[0]
		ws = ws[1:]
		m.waiters[name] = ws
		now := time.Now()
		if now.After(next.deadline) {
			continue // already timed out on its own path
		}
		expiresAt := now.Add(next.lease)
		m.locks[name] = lockRecord{holder: next.holder, acquiredAt: now, expiresAt: expiresAt}
		m.mu.Unlock()
		select {
		case next.result <- lockOutcome{acquired: true, expiresAt: expiresAt}:
		default:
		}
		return
	}
	if len(m.waiters[name]) == 0 {
		delete(m.waiters, name)
	}
	m.mu.Unlock()
}

// LockSnapshot is one entry of List's output.
type LockSnapshot struct {
	Name      string
	Holder    string
	ExpiresAt time.Time
}

// List returns every live lock record. Expired records are treated
// as absent (§3).
func (m *LockManager) List() []LockSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := make([]LockSnapshot, 0, len(m.locks))
	for name, rec := range m.locks {
		if !rec.live(now) {
			continue
		}
		out = append(out, LockSnapshot{Name: name, Holder: rec.holder, ExpiresAt: rec.expiresAt})
	}
	return out
}

// ReleaseAllHeldBy releases every lock currently held by holder — used
// on connection close when Config.ReleaseLocksOnDisconnect is set.
func (m *LockManager) ReleaseAllHeldBy(holder string) {
	m.mu.Lock()
	now := time.Now()
	var names []string
	for name, rec := range m.locks {
		if rec.live(now) && rec.holder == holder {
			names = append(names, name)
		}
	}
	m.mu.Unlock()
	for _, name := range names {
		m.Release(name, holder)
	}
}

// sweep periodically wakes waiters whose target lock has expired.
// Lazy checks on every Acquire/Release already guarantee correctness;
// the sweeper only bounds how long a waiter sits behind an
// abandoned (never-released) expired lease.
func (m *LockManager) sweep() {
	defer m.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *LockManager) sweepOnce() {
	now := time.Now()
	m.mu.Lock()
	var expiredNames []string
	for name, rec := range m.locks {
		if !rec.live(now) {
			expiredNames = append(expiredNames, name)
			delete(m.locks, name)
		}
	}
	m.mu.Unlock()
	for _, name := range expiredNames {
		m.handOff(name)
	}
}
