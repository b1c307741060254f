// Package usermutex implements the user-space mutex primitive from
// spec.md §4.5, grounded on original_source's user_mutex.cpp: an
// id-indexed table of reentrant mutexes, each with a wait queue and an
// optional clock-backed timeout, created by Table.Create and removed only
// by Table.Destroy; a process's death does not destroy its mutexes.
package usermutex

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/maxdev1/ghostkernel/clock"
	"github.com/maxdev1/ghostkernel/hashmap"
	"github.com/maxdev1/ghostkernel/task"
	"github.com/maxdev1/ghostkernel/waitqueue"
)

var ErrNotFound = errors.New("usermutex: unknown id")

// Mutex is one user mutex: reentrant by owning task id, with a wait queue
// for blocked acquirers. Unlike kmutex.Mutex this is acquired by tasks
// running user code, so it blocks via waitqueue/clock rather than
// spinning.
type Mutex struct {
	ID int32

	mu       sync.Mutex
	owner    int32 // task id, task.NoCPU-style sentinel below
	count    int32
	reentrant bool
	waiters  waitqueue.Queue
}

const noOwner int32 = -1

// Table is the per-process (or global, if the caller shares one) registry
// of user mutexes, mirroring the original's userMutexCreate returning a
// fresh id into a process-local table.
type Table struct {
	clock  *clock.Clock
	nextID atomic.Int32
	byID   *hashmap.Map[int32, *Mutex]
}

func NewTable(c *clock.Clock) *Table {
	return &Table{clock: c, byID: hashmap.New[int32, *Mutex](8)}
}

// Create allocates a new mutex, optionally reentrant (a task already
// holding it may acquire it again, incrementing a recursion count).
func (t *Table) Create(reentrant bool) *Mutex {
	id := t.nextID.Add(1)
	m := &Mutex{ID: id, owner: noOwner, reentrant: reentrant}
	t.byID.Put(id, m)
	return m
}

func (t *Table) Get(id int32) (*Mutex, bool) { return t.byID.Get(id) }

func (t *Table) Destroy(id int32) {
	if m, ok := t.byID.Get(id); ok {
		m.waiters.Wake()
	}
	t.byID.Remove(id)
}

// TryAcquire attempts a non-blocking acquisition, mirroring
// userMutexTryAcquire. Returns false if held by a different task.
func (m *Mutex) TryAcquire(taskID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tryAcquireLocked(taskID)
}

func (m *Mutex) tryAcquireLocked(taskID int32) bool {
	if m.owner == noOwner {
		m.owner = taskID
		m.count = 1
		return true
	}
	if m.owner == taskID && m.reentrant {
		m.count++
		return true
	}
	return false
}

// Acquire blocks the calling task until the mutex is obtained or, when
// timeoutMs is non-zero, until it elapses, mirroring userMutexAcquire's
// spin-then-wait-queue loop with an optional clock deadline. A timeoutMs
// of 0 behaves identically to trying=true regardless of trying's own
// value (spec.md §8): it attempts the mutex once and returns immediately
// rather than blocking forever, unlike the original where timeout==0 just
// meant "no deadline". wasSet reports whether the mutex was obtained;
// hasTimedOut reports whether the deadline elapsed first.
func (m *Mutex) Acquire(self *task.Task, timeoutMs uint64, trying bool, c *clock.Clock) (wasSet, hasTimedOut bool) {
	trying = trying || timeoutMs == 0
	hasDeadline := timeoutMs != 0

	var timerWake <-chan struct{}
	if hasDeadline {
		timerWake = c.WaitForTime(self.ID, c.Now()+timeoutMs)
	}

	for {
		if hasDeadline && c.HasTimedOut(self.ID) {
			hasTimedOut = true
			break
		}

		m.mu.Lock()
		wasSet = m.tryAcquireLocked(self.ID)
		m.mu.Unlock()
		if wasSet {
			break
		}

		if trying {
			break
		}

		wake := m.waiters.Add(self.ID)
		if hasDeadline {
			select {
			case <-wake:
			case <-timerWake:
			}
		} else {
			<-wake
		}
		m.waiters.Remove(self.ID)
	}

	if hasDeadline {
		c.Unwait(self.ID)
	}
	m.waiters.Remove(self.ID)

	return wasSet, hasTimedOut
}

// Release drops one level of recursion, fully releasing and waking every
// blocked waiter once the count reaches zero, mirroring
// userMutexRelease/_userMutexWakeWaitingTasks. Returns false if called by
// a task that does not hold the mutex.
func (m *Mutex) Release(taskID int32) bool {
	m.mu.Lock()
	if m.owner != taskID {
		m.mu.Unlock()
		return false
	}
	m.count--
	if m.count > 0 {
		m.mu.Unlock()
		return true
	}
	m.owner = noOwner
	m.mu.Unlock()
	m.waiters.Wake()
	return true
}
