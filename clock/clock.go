// Package clock implements the per-CPU monotonic millisecond clock and
// wake-time wait list described in spec.md §4.3. Grounded directly on
// original_source/kernel/src/kernel/tasking/clock.cpp: an ascending,
// singly-linked wait list plus a free-running tick counter.
package clock

import "sync"

// waiter is one entry in the ascending wake-time list.
type waiter struct {
	task     int32
	wakeTime uint64
	wake     chan struct{} // closed by WakeDue when this waiter is due
	next     *waiter
}

// Clock is one CPU's local monotonic clock plus its wake list. Time is
// advanced only by explicit Tick calls, which stand in for the timer
// interrupt; the kernel package does not call Tick.
type Clock struct {
	mu      sync.Mutex // guards time and waiters
	time    uint64
	waiters *waiter
}

func New() *Clock {
	return &Clock{}
}

// Now returns the current local tick count, in milliseconds.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Tick advances the local clock by deltaMs milliseconds. It is the
// simulation's analogue of the timer interrupt firing; callers should call
// WakeDue after Tick.
func (c *Clock) Tick(deltaMs uint64) {
	c.mu.Lock()
	c.time += deltaMs
	c.mu.Unlock()
}

// WaitForTime registers task on the wake list at wakeTime, keeping the
// list ordered ascending by wakeTime, and returns a channel that WakeDue
// closes when the task becomes due. Unwait removes the entry without
// closing the channel. The caller blocks on this channel in place of the original's
// task->status = WAITING / taskingYield() pair.
func (c *Clock) WaitForTime(task int32, wakeTime uint64) <-chan struct{} {
	w := &waiter{task: task, wakeTime: wakeTime, wake: make(chan struct{})}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waiters == nil || c.waiters.wakeTime > wakeTime {
		w.next = c.waiters
		c.waiters = w
		return w.wake
	}
	prev := c.waiters
	for prev.next != nil && prev.next.wakeTime <= wakeTime {
		prev = prev.next
	}
	w.next = prev.next
	prev.next = w
	return w.wake
}

// WakeDue pops and wakes every waiter whose wakeTime is now due, mirroring
// clockUpdate(). Called after Tick.
func (c *Clock) WakeDue() {
	now := c.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.waiters != nil && now >= c.waiters.wakeTime {
		close(c.waiters.wake)
		c.waiters = c.waiters.next
	}
}

// Unwait removes all wake-list entries for task, mirroring
// clockUnwaitForTime(); used both on early wake (condition satisfied
// before timeout) and on the timeout path itself.
func (c *Clock) Unwait(task int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var prev *waiter
	cur := c.waiters
	for cur != nil {
		if cur.task == task {
			next := cur.next
			if prev != nil {
				prev.next = next
			} else {
				c.waiters = next
			}
			cur = next
			continue
		}
		prev = cur
		cur = cur.next
	}
}

// HasTimedOut reports whether task either has no pending wait-list entry,
// or its entry's wakeTime has already elapsed, mirroring
// clockHasTimedOut().
func (c *Clock) HasTimedOut(task int32) bool {
	now := c.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for cur := c.waiters; cur != nil; cur = cur.next {
		if cur.task == task {
			return now >= cur.wakeTime
		}
	}
	return true
}
