// Package task implements the Task and Process entities from spec.md §3,
// plus the global task/identifier registries spec.md §9 calls for in place
// of the original's raw pointers ("each task stores an index/id ... into
// the owning process's task table. Lookups go through the global task
// map."). Grounded on manager/process.go's Lock/WaitGroup/die-channel
// shape for lifecycle state, generalized from one external OS process to
// an in-kernel task.
package task

import (
	"sync/atomic"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/maxdev1/ghostkernel/kmutex"
	"github.com/maxdev1/ghostkernel/waitqueue"
)

// SecurityLevel is the three-way capability tag from spec.md's Glossary.
type SecurityLevel int

const (
	Kernel SecurityLevel = iota
	Driver
	Application
)

func (s SecurityLevel) String() string {
	switch s {
	case Kernel:
		return "kernel"
	case Driver:
		return "driver"
	case Application:
		return "application"
	}
	return "unknown"
}

// Status is a task's scheduling status.
type Status int32

const (
	Running Status = iota
	Waiting
	Dead
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// Kind distinguishes the handful of special task types the scheduler and
// spawn protocol treat differently.
type Kind int

const (
	Default Kind = iota
	VM86
	Vital
)

// NoCPU is the Assignment value of a task that has not yet been placed on
// a CPU by taskingAssignBalanced.
const NoCPU int32 = -1

// Task is one thread of control. Exported fields are documented in
// spec.md §3; unexported fields are simulation bookkeeping with no
// counterpart in the original.
type Task struct {
	ID        int32
	ProcessID int32
	Security  SecurityLevel
	Kind      Kind
	Active    atomic.Bool

	status     atomic.Int32
	Assignment atomic.Int32 // CPU id, NoCPU if unassigned

	lock *kmutex.Mutex // guards status transitions in SetStatus/CompareAndSetStatus; Global flavor, short sections only

	// EntryFunc/EntryData describe a newly created task's initial entry
	// point; set at creation, consumed once by whatever drives the task's
	// goroutine (spawn's Handle.run).
	EntryFunc func(ctx interface{})
	EntryData interface{}

	// KernelInterruptStackSize/UserStackSize record the configured stack
	// sizes; the simulation has no raw memory to back them with, so only
	// the sizes are modeled.
	KernelInterruptStackSize uint32
	UserStackSize            uint32

	// OverridePageDirectory is set for kernel-side cross-address-space
	// work (the ELF loader running in a spawned process's space while
	// executing on the spawner's behalf, spec.md §4.10).
	OverridePageDirectory uint32

	KernelTLS uintptr
	UserTLS   uintptr

	TimesScheduled atomic.Uint32
	TimesYielded   atomic.Uint32

	// Joiners is the set of tasks blocked in Join waiting for this task to
	// reach Dead.
	Joiners waitqueue.Queue
}

// New creates a task in the Running state, unassigned to any CPU.
func New(id, processID int32, sec SecurityLevel, kind Kind) *Task {
	t := &Task{
		ID:        id,
		ProcessID: processID,
		Security:  sec,
		Kind:      kind,
		lock:      kmutex.New(kmutex.Global, "task"),
	}
	t.Active.Store(true)
	t.status.Store(int32(Running))
	t.Assignment.Store(NoCPU)
	return t
}

func (t *Task) Status() Status { return Status(t.status.Load()) }

// SetStatus performs the transition under the task's lock, mirroring
// every "mutexAcquire(&task->lock); task->status = ...; mutexRelease"
// sequence in the original (clock.cpp, wait_queue.cpp, user_mutex.cpp).
func (t *Task) SetStatus(core *cpu.Core, s Status) {
	t.lock.Acquire(core)
	t.status.Store(int32(s))
	t.lock.Release(core)
}

// CompareAndSetStatus sets the status to `to` under the task's lock only
// if it is currently `from`, the shape of "if task->status == WAITING:
// task->status = RUNNING" in waitQueueWake/clockUpdate/_userMutexWakeWaitingTasks.
func (t *Task) CompareAndSetStatus(core *cpu.Core, from, to Status) bool {
	t.lock.Acquire(core)
	defer t.lock.Release(core)
	if Status(t.status.Load()) != from {
		return false
	}
	t.status.Store(int32(to))
	return true
}

func (t *Task) CPU() int32 { return t.Assignment.Load() }

func (t *Task) assign(id int32) { t.Assignment.Store(id) }
