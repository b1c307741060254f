// Package cpu models one logical processor of the simulated machine. A
// *Core is the analogue of the original kernel's per-CPU state, reduced to
// whether "interrupts" are disabled and how many non-task (global) mutexes
// it currently holds; it does not record which task it runs. Real interrupt-enable bits
// and register files are out of scope (spec.md §1); this package tracks
// only the bookkeeping that the rest of the kernel core's invariants
// depend on.
package cpu

import "sync/atomic"

// Core is one simulated CPU. It is never copied after creation.
type Core struct {
	ID int32

	// interruptsEnabled is flipped by kmutex on first/last nested
	// acquisition of a mutex on this core. It has no hardware effect in
	// the simulation; it exists so the discipline in spec.md §4.1 is
	// mechanically checkable.
	interruptsEnabled atomic.Bool

	// globalLockCount counts currently held "global" (non-task) mutexes
	// on this core. A task must not yield while it is nonzero.
	globalLockCount atomic.Int32
}

func New(id int32) *Core {
	c := &Core{ID: id}
	c.interruptsEnabled.Store(true)
	return c
}

func (c *Core) InterruptsEnabled() bool { return c.interruptsEnabled.Load() }

func (c *Core) SetInterruptsEnabled(v bool) { c.interruptsEnabled.Store(v) }

func (c *Core) IncGlobalLock() { c.globalLockCount.Add(1) }

func (c *Core) DecGlobalLock() { c.globalLockCount.Add(-1) }

// GlobalLockCount reports how many global mutexes this core currently
// holds. No code in this module checks it before a task gives up its
// core.
func (c *Core) GlobalLockCount() int32 { return c.globalLockCount.Load() }
