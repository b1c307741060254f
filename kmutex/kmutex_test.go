package kmutex

import (
	"testing"
	"time"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/stretchr/testify/require"
)

func TestNestedAcquireRelease(t *testing.T) {
	c := cpu.New(0)
	m := New(Global, "test")

	m.Acquire(c)
	require.False(t, c.InterruptsEnabled())
	require.EqualValues(t, 1, c.GlobalLockCount())

	m.Acquire(c) // reentrant
	require.EqualValues(t, 1, c.GlobalLockCount(), "nested acquire by same core must not double count global locks")

	m.Release(c)
	require.False(t, c.InterruptsEnabled(), "interrupts stay disabled until the outermost release")

	m.Release(c)
	require.True(t, c.InterruptsEnabled())
	require.EqualValues(t, 0, c.GlobalLockCount())
}

func TestTryAcquireContention(t *testing.T) {
	m := New(Task, "test")
	c0 := cpu.New(0)
	c1 := cpu.New(1)

	m.Acquire(c0)
	require.False(t, m.TryAcquire(c1))
	m.Release(c0)
	require.True(t, m.TryAcquire(c1))
	m.Release(c1)
}

func TestAcquireBlocksOtherCore(t *testing.T) {
	m := New(Task, "test")
	c0 := cpu.New(0)
	c1 := cpu.New(1)

	m.Acquire(c0)
	acquired := make(chan struct{})
	go func() {
		m.Acquire(c1)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second core acquired a mutex still held by the first")
	case <-time.After(20 * time.Millisecond):
	}

	m.Release(c0)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second core never acquired the mutex after release")
	}
	m.Release(c1)
}
