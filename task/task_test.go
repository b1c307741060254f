package task

import (
	"testing"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	core := cpu.New(0)
	tsk := New(1, 1, Application, Default)
	require.Equal(t, Running, tsk.Status())

	tsk.SetStatus(core, Waiting)
	require.Equal(t, Waiting, tsk.Status())

	require.False(t, tsk.CompareAndSetStatus(core, Running, Dead), "must not transition from the wrong state")
	require.True(t, tsk.CompareAndSetStatus(core, Waiting, Running))
	require.Equal(t, Running, tsk.Status())
}

func TestRegistryAssignsIDsAndNames(t *testing.T) {
	r := NewRegistry()
	a := r.NextTaskID()
	b := r.NextTaskID()
	require.NotEqual(t, a, b)

	tsk := New(a, 1, Kernel, Vital)
	r.PutTask(tsk)
	got, ok := r.Task(a)
	require.True(t, ok)
	require.Same(t, tsk, got)

	r.Register("windowserver", a)
	id, ok := r.Lookup("windowserver")
	require.True(t, ok)
	require.Equal(t, a, id)
}

func TestProcessTaskBookkeeping(t *testing.T) {
	p := NewProcess(1, Application, Environment{ExecPath: "/apps/test"}, 0x40000000, 0x100000)
	main := New(1, 1, Application, Default)
	p.AddTask(main)
	require.Same(t, main, p.Main())
	require.Equal(t, 1, p.TaskCount())

	p.RemoveTask(main.ID)
	require.Equal(t, 0, p.TaskCount())
}
