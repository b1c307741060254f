package scheduler

import (
	"testing"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/maxdev1/ghostkernel/task"
	"github.com/stretchr/testify/require"
)

func TestAssignBalancedPicksLeastLoaded(t *testing.T) {
	s := New()
	s.AddCPU(cpu.New(0))
	s.AddCPU(cpu.New(1))

	a := task.New(1, 1, task.Application, task.Default)
	b := task.New(2, 1, task.Application, task.Default)
	c := task.New(3, 1, task.Application, task.Default)

	ca := s.AssignBalanced(a)
	cb := s.AssignBalanced(b)
	cc := s.AssignBalanced(c)

	require.NotEqual(t, ca.ID, cb.ID, "the second task should land on the other, still-empty core")
	// the third task must go to whichever core has one task, bringing it to two.
	require.True(t, cc.ID == ca.ID || cc.ID == cb.ID)
}

func TestRoundRobinSkipsNonRunningAndFallsBackToIdle(t *testing.T) {
	core := cpu.New(0)
	pc := newPerCPU(core)
	idle := task.New(99, 0, task.Kernel, task.Vital)
	pc.SetIdle(idle)

	a := task.New(1, 1, task.Application, task.Default)
	b := task.New(2, 1, task.Application, task.Default)
	pc.add(a)
	pc.add(b)

	require.Same(t, a, pc.Next())
	require.Same(t, b, pc.Next())
	require.Same(t, a, pc.Next(), "round robin must wrap back to the first task")

	a.SetStatus(core, task.Waiting)
	b.SetStatus(core, task.Waiting)
	require.Same(t, idle, pc.Next(), "with nothing runnable the idle task must be returned")
}

func TestPreferredTaskHintRedirectsThenClears(t *testing.T) {
	s := New()
	core := cpu.New(0)
	s.AddCPU(core)

	a := task.New(1, 1, task.Application, task.Default)
	b := task.New(2, 1, task.Application, task.Default)
	s.AssignBalanced(a)
	s.AssignBalanced(b)

	s.Prefer(b.ID)
	require.Same(t, b, s.Schedule(core.ID), "a set hint must redirect scheduling to that task")
	require.Same(t, a, s.Schedule(core.ID), "the hint must be cleared after one use, falling back to round robin")
}

func TestPreferredTaskHintIgnoredOnOtherCPU(t *testing.T) {
	s := New()
	core0 := cpu.New(0)
	core1 := cpu.New(1)
	s.AddCPU(core0)
	s.AddCPU(core1)

	a := task.New(1, 1, task.Application, task.Default)
	b := task.New(2, 1, task.Application, task.Default)
	ca := s.AssignBalanced(a)
	s.AssignBalanced(b) // the other core is still empty, so b lands there

	s.Prefer(b.ID) // b lives on the other CPU
	require.Same(t, a, s.Schedule(ca.ID))
}
