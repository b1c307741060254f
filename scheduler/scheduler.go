// Package scheduler implements the round-robin scheduler from spec.md
// §4.2, grounded on
// original_source/kernel/src/kernel/tasking/scheduler/scheduler_round_robin.cpp:
// each CPU keeps its own task list and a "preferred" position so the next
// lookup resumes where the last one left off instead of always starting
// at the head, falls back to an idle task when nothing is runnable, and
// tasks are assigned to CPUs by a simple least-loaded balance
// (taskingAssignBalanced) rather than ever migrating afterward.
package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/maxdev1/ghostkernel/task"
)

// PerCPU is one CPU's run queue: the round-robin task list, the position
// the next search resumes from, and the idle task run when nothing else
// is Running.
type PerCPU struct {
	Core *cpu.Core

	mu        sync.Mutex
	tasks     []*task.Task
	preferred int
	idle      *task.Task
}

func newPerCPU(core *cpu.Core) *PerCPU {
	return &PerCPU{Core: core}
}

// SetIdle installs the task run when no other task on this CPU is
// Running, mirroring the original's per-core idle thread.
func (c *PerCPU) SetIdle(t *task.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = t
}

func (c *PerCPU) add(t *task.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, t)
}

func (c *PerCPU) remove(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.tasks {
		if t.ID == id {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			if c.preferred > i {
				c.preferred--
			}
			return
		}
	}
}

func (c *PerCPU) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Next returns the next Running task in round-robin order starting just
// after the position the previous call left off, or the idle task if no
// task on this CPU is Running. Matches schedulerGetNextTask's "wrap
// around once, then fall back to idle" shape.
func (c *PerCPU) Next() *task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectFromLocked(c.preferred)
}

// NextPreferred behaves like Next but, if preferredTaskID is present on
// this CPU's run list, starts the search there instead of at the resume
// position, mirroring schedulerGetNextTask's global "preferred task"
// check. found reports whether preferredTaskID was present on this CPU's
// list at all, independent of whether it ended up selected: the original
// clears the global hint as soon as the task is located, before the
// RUNNING walk even starts.
func (c *PerCPU) NextPreferred(preferredTaskID int32) (t *task.Task, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.preferred
	for i, tk := range c.tasks {
		if tk.ID == preferredTaskID {
			start = i
			found = true
			break
		}
	}
	return c.selectFromLocked(start), found
}

func (c *PerCPU) selectFromLocked(start int) *task.Task {
	n := len(c.tasks)
	if n == 0 {
		return c.idle
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		t := c.tasks[idx]
		if t.Status() == task.Running && t.Active.Load() {
			t.TimesScheduled.Add(1)
			c.preferred = (idx + 1) % n
			return t
		}
	}
	return c.idle
}

func (c *PerCPU) dump() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "cpu %d (%d tasks)\n", c.Core.ID, len(c.tasks))
	for _, t := range c.tasks {
		fmt.Fprintf(&b, "  task %-6d proc %-6d %-7s sched=%d yield=%d\n",
			t.ID, t.ProcessID, t.Status().String(), t.TimesScheduled.Load(), t.TimesYielded.Load())
	}
	return b.String()
}
