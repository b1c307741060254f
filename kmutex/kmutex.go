// Package kmutex implements the kernel spin-mutex described in spec.md
// §4.1: a CAS-acquired lock that disables "interrupts" on the owning core
// for the duration of the outermost critical section and counts nested
// acquisitions by the same core.
//
// Grounded on the original kernel's mutex.cpp discipline (not retrievable
// in original_source's size-filtered pack, so the algorithm below follows
// spec.md §4.1 directly) and on the lock-nesting pattern manager/process.go
// uses around its die-channel (Lock/defer Unlock guarding Start/Close).
package kmutex

import (
	"runtime"
	"sync/atomic"

	"github.com/maxdev1/ghostkernel/cpu"
)

// Flavor distinguishes mutexes that may be held across a voluntary yield
// ("task" mutexes, used for longer kernel-side critical sections) from
// ones that may not ("global" mutexes, used for short critical sections
// only). Core.GlobalLockCount reports how many Global mutexes a core holds;
// no code in this module checks that count before a task gives up its core.
type Flavor int

const (
	Task Flavor = iota
	Global
)

const noOwner int32 = -1

// Mutex is a spinlock with interrupt discipline. The zero value is not
// usable; construct with New.
type Mutex struct {
	flavor Flavor
	name   string
	owner  atomic.Int32
	count  int32 // only ever mutated by the owning core
	saved  bool  // interrupt-enabled flag saved on first acquisition
}

// New creates a mutex of the given flavor. name is used only for
// diagnostics, mirroring the original mutexInitialize(..., __func__) call
// sites.
func New(flavor Flavor, name string) *Mutex {
	m := &Mutex{flavor: flavor, name: name}
	m.owner.Store(noOwner)
	return m
}

func (m *Mutex) Name() string { return m.name }

// Acquire spins until the mutex is free or already owned by c, then
// increments the nesting count. On the first acquisition by this core it
// saves the core's current interrupt-enabled flag and disables interrupts.
func (m *Mutex) Acquire(c *cpu.Core) {
	for {
		if m.owner.CompareAndSwap(noOwner, c.ID) {
			break
		}
		if m.owner.Load() == c.ID {
			break // reentrant acquisition by the same core
		}
		runtime.Gosched()
	}
	m.onAcquired(c)
}

// TryAcquire behaves like Acquire but never spins; it returns false
// immediately if another core owns the mutex.
func (m *Mutex) TryAcquire(c *cpu.Core) bool {
	if !m.owner.CompareAndSwap(noOwner, c.ID) && m.owner.Load() != c.ID {
		return false
	}
	m.onAcquired(c)
	return true
}

func (m *Mutex) onAcquired(c *cpu.Core) {
	if m.count == 0 {
		m.saved = c.InterruptsEnabled()
		c.SetInterruptsEnabled(false)
		if m.flavor == Global {
			c.IncGlobalLock()
		}
	}
	m.count++
}

// Release decrements the nesting count; on the outermost release it
// restores the interrupt-enabled flag saved at first acquisition.
func (m *Mutex) Release(c *cpu.Core) {
	m.count--
	if m.count == 0 {
		if m.flavor == Global {
			c.DecGlobalLock()
		}
		c.SetInterruptsEnabled(m.saved)
		m.owner.Store(noOwner)
	}
}

// HeldBy reports whether c is currently the owner.
func (m *Mutex) HeldBy(c *cpu.Core) bool { return m.owner.Load() == c.ID }
