package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSleepOrdering mirrors end-to-end scenario 5 in spec.md §8: three
// tasks sleep with wake times now+30, now+10, now+20, and must wake in
// ascending order 10, 20, 30.
func TestSleepOrdering(t *testing.T) {
	c := New()
	now := c.Now()

	w30 := c.WaitForTime(1, now+30)
	w10 := c.WaitForTime(2, now+10)
	w20 := c.WaitForTime(3, now+20)

	var order []int
	record := func(id int, ch <-chan struct{}) {
		select {
		case <-ch:
			order = append(order, id)
		case <-time.After(time.Second):
			t.Fatalf("task %d never woke", id)
		}
	}

	c.Tick(10)
	c.WakeDue()
	record(10, w10)

	c.Tick(10)
	c.WakeDue()
	record(20, w20)

	c.Tick(10)
	c.WakeDue()
	record(30, w30)

	require.Equal(t, []int{10, 20, 30}, order)
}

func TestHasTimedOutAndUnwait(t *testing.T) {
	c := New()
	require.True(t, c.HasTimedOut(1), "a task with no registered wait has timed out")

	c.WaitForTime(1, c.Now()+50)
	require.False(t, c.HasTimedOut(1))

	c.Unwait(1)
	require.True(t, c.HasTimedOut(1))
}
