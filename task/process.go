package task

import (
	"sync"

	"github.com/maxdev1/ghostkernel/addrpool"
	"github.com/maxdev1/ghostkernel/waitqueue"
)

// Environment carries the argv/workdir/executable-path triple a process is
// spawned with (spec.md §4.10 spawn arguments).
type Environment struct {
	ExecPath string
	Args     string
	WorkDir  string
}

// Process groups every task that shares one address space (spec.md §3).
// The simulation kernel has no real page tables, so AddressPool stands in
// for the process's user-space virtual memory manager and TLSMaster*
// records the composed thread-local image described in spec.md §4.9.
type Process struct {
	ID       int32
	Security SecurityLevel
	Env      Environment

	AddressPool *addrpool.Pool

	TLSMasterBase uint32
	TLSMasterSize uint32

	HeapBreak uint32

	mu    sync.RWMutex
	tasks map[int32]*Task
	main  *Task

	// object is the loaded image backing this process; spawn stores its
	// *elfloader.Graph here. It is kept as interface{} so that task does
	// not import elfloader, and nothing in this module reads it back.
	object interface{}

	// SpawnWaiters holds tasks parked until the spawn of this process is
	// finalized (spawn's Prepared.WaitForFinalize); spawn's Finalize wakes
	// them (spec.md §4.10). It is distinct from Task.Joiners.
	SpawnWaiters waitqueue.Queue
}

// NewProcess creates an empty process with a fresh address pool spanning
// [userBase, userBase+userSize).
func NewProcess(id int32, sec SecurityLevel, env Environment, userBase, userSize uint32) *Process {
	return &Process{
		ID:          id,
		Security:    sec,
		Env:         env,
		AddressPool: addrpool.New(userBase, userSize),
		tasks:       make(map[int32]*Task),
	}
}

// AddTask registers t as belonging to this process. The first task added
// becomes the process's main task.
func (p *Process) AddTask(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[t.ID] = t
	if p.main == nil {
		p.main = t
	}
}

func (p *Process) RemoveTask(id int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tasks, id)
}

func (p *Process) Main() *Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.main
}

func (p *Process) Task(id int32) (*Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[id]
	return t, ok
}

// Tasks returns a snapshot of every task currently belonging to the
// process.
func (p *Process) Tasks() []*Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	return out
}

// TaskCount reports how many tasks remain alive in the process; the
// cleanup reaper (spec.md §9 "cleanup task") destroys the process once
// this reaches zero.
func (p *Process) TaskCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// SetObject / Object store the opaque loaded-image handle (see the object
// field's doc comment above).
func (p *Process) SetObject(o interface{}) { p.object = o }
func (p *Process) Object() interface{}     { return p.object }
