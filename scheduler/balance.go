package scheduler

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/maxdev1/ghostkernel/task"
)

// noPreferredTask is the zero value of preferredTask, meaning "no hint
// set"; valid task ids are always >= 1 (task.Registry.NextTaskID starts
// its atomic counter at 1).
const noPreferredTask int32 = 0

// Scheduler owns one PerCPU run queue per simulated CPU core and performs
// the balanced assignment a newly created task receives exactly once
// (spec.md §4.2: "assignment happens once, at creation; tasks are never
// migrated afterward").
type Scheduler struct {
	mu   sync.RWMutex
	cpus map[int32]*PerCPU

	// preferredTask is the global "preferred task" hint from
	// scheduler_round_robin.cpp's package-level preferredTask: every
	// Schedule call checks it before falling back to round robin, but only
	// a call on the CPU whose run list holds the hinted task clears it.
	preferredTask atomic.Int32
}

func New() *Scheduler {
	return &Scheduler{cpus: make(map[int32]*PerCPU)}
}

// Prefer sets the global "preferred task" hint (schedulerPrefer): the
// next Schedule call against whichever CPU taskID is assigned to starts
// its run-list search there instead of resuming where it left off.
func (s *Scheduler) Prefer(taskID int32) {
	s.preferredTask.Store(taskID)
}

// AddCPU registers a new simulated core with an empty run queue.
func (s *Scheduler) AddCPU(core *cpu.Core) *PerCPU {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc := newPerCPU(core)
	s.cpus[core.ID] = pc
	return pc
}

func (s *Scheduler) CPU(id int32) (*PerCPU, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.cpus[id]
	return pc, ok
}

// AssignBalanced places t on whichever registered CPU currently has the
// fewest tasks, mirroring taskingAssignBalanced's least-loaded pick.
func (s *Scheduler) AssignBalanced(t *task.Task) *cpu.Core {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *PerCPU
	for _, pc := range s.cpus {
		if best == nil || pc.count() < best.count() {
			best = pc
		}
	}
	if best == nil {
		return nil
	}
	best.add(t)
	t.Assignment.Store(best.Core.ID)
	return best.Core
}

// Remove drops t from whichever CPU it was assigned to.
func (s *Scheduler) Remove(t *task.Task) {
	id := t.Assignment.Load()
	s.mu.RLock()
	pc, ok := s.cpus[id]
	s.mu.RUnlock()
	if ok {
		pc.remove(t.ID)
	}
}

// Schedule returns the next task to run on the given CPU, consulting the
// global preferred-task hint first (spec.md §4.2 step 2).
func (s *Scheduler) Schedule(cpuID int32) *task.Task {
	s.mu.RLock()
	pc, ok := s.cpus[cpuID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	if pref := s.preferredTask.Load(); pref != noPreferredTask {
		t, found := pc.NextPreferred(pref)
		if found {
			s.preferredTask.CompareAndSwap(pref, noPreferredTask)
		}
		return t
	}
	return pc.Next()
}

// Dump renders every CPU's run queue, used by the bootconsole's scheduler
// view and by KERNQUERY scheduler-dump requests (spec.md's SUPPLEMENTED
// FEATURES).
func (s *Scheduler) Dump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for _, pc := range s.cpus {
		b.WriteString(pc.dump())
	}
	return b.String()
}
