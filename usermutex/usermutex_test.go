package usermutex

import (
	"testing"
	"time"

	"github.com/maxdev1/ghostkernel/clock"
	"github.com/maxdev1/ghostkernel/task"
	"github.com/stretchr/testify/require"
)

func TestReentrantAcquireRelease(t *testing.T) {
	tbl := NewTable(clock.New())
	m := tbl.Create(true)

	require.True(t, m.TryAcquire(1))
	require.True(t, m.TryAcquire(1), "reentrant mutex must allow the owner to reacquire")
	require.False(t, m.TryAcquire(2), "a different task must not acquire while held")

	require.True(t, m.Release(1))
	require.False(t, m.Release(2), "release by a non-owner must fail")
	require.True(t, m.Release(1))
	require.True(t, m.TryAcquire(2), "once fully released, another task may acquire")
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	tbl := NewTable(clock.New())
	m := tbl.Create(false)
	require.True(t, m.TryAcquire(1))

	other := task.New(2, 1, task.Application, task.Default)
	done := make(chan bool, 1)
	go func() {
		wasSet, _ := m.Acquire(other, 1000, false, tbl.clock)
		done <- wasSet
	}()

	select {
	case <-done:
		t.Fatal("Acquire must block while the mutex is held")
	case <-time.After(30 * time.Millisecond):
	}

	m.Release(1)
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Acquire never returned after release")
	}
}

func TestAcquireTimesOut(t *testing.T) {
	c := clock.New()
	tbl := NewTable(c)
	m := tbl.Create(false)
	require.True(t, m.TryAcquire(1))

	self := task.New(2, 1, task.Application, task.Default)
	done := make(chan bool, 1)
	go func() {
		wasSet, hasTimedOut := m.Acquire(self, 10, false, c)
		require.True(t, hasTimedOut)
		done <- wasSet
	}()

	time.Sleep(20 * time.Millisecond)
	c.Tick(10)
	c.WakeDue()

	select {
	case ok := <-done:
		require.False(t, ok, "Acquire must report failure once its deadline elapses")
	case <-time.After(time.Second):
		t.Fatal("Acquire never returned after timeout")
	}
}

// TestAcquireZeroTimeoutActsAsTrying covers spec.md §8's "timeout of 0
// behaves identically to trying=true": a held, non-reentrant mutex must
// fail fast rather than block when timeoutMs is 0, even though trying
// itself is false.
func TestAcquireZeroTimeoutActsAsTrying(t *testing.T) {
	tbl := NewTable(clock.New())
	m := tbl.Create(false)
	require.True(t, m.TryAcquire(1))

	other := task.New(2, 1, task.Application, task.Default)
	done := make(chan bool, 1)
	go func() {
		wasSet, hasTimedOut := m.Acquire(other, 0, false, tbl.clock)
		require.False(t, hasTimedOut)
		done <- wasSet
	}()

	select {
	case ok := <-done:
		require.False(t, ok, "timeout=0 must return immediately without blocking")
	case <-time.After(time.Second):
		t.Fatal("Acquire blocked despite timeout=0")
	}
}

// TestAcquireReentrantZeroTimeout covers §8's scenario 3: three
// acquisitions of a reentrant mutex with timeout 0 by the same task all
// succeed immediately.
func TestAcquireReentrantZeroTimeout(t *testing.T) {
	tbl := NewTable(clock.New())
	m := tbl.Create(true)
	self := task.New(1, 1, task.Application, task.Default)

	for i := 0; i < 3; i++ {
		wasSet, hasTimedOut := m.Acquire(self, 0, false, tbl.clock)
		require.True(t, wasSet)
		require.False(t, hasTimedOut)
	}
}
