// Package waitqueue implements the kernel wait queue described in
// spec.md §4.4: a linked list of blocked task ids guarded by a lock, with
// an O(1) add, O(n) remove, and a wake-all primitive. Grounded directly on
// original_source/kernel/src/kernel/utils/wait_queue.cpp.
package waitqueue

import "sync"

type entry struct {
	task int32
	wake chan struct{}
	next *entry
}

// Queue is a wait queue. The zero value is ready to use.
type Queue struct {
	mu   sync.Mutex
	head *entry
}

// Add enrolls task and returns the channel that Wake closes when it fires.
// Mirrors waitQueueAdd; O(1).
func (q *Queue) Add(task int32) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := &entry{task: task, wake: make(chan struct{}), next: q.head}
	q.head = e
	return e.wake
}

// Remove drops the first entry matching task, mirrors waitQueueRemove;
// O(n). It does not close the channel: Remove is used to cancel a wait
// that was satisfied some other way (e.g. a timeout), and the caller is
// not expected to still be receiving on it.
func (q *Queue) Remove(task int32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var prev *entry
	cur := q.head
	for cur != nil {
		if cur.task == task {
			if prev != nil {
				prev.next = cur.next
			} else {
				q.head = cur.next
			}
			return
		}
		prev = cur
		cur = cur.next
	}
}

// Wake pops every entry and closes its channel, mirroring waitQueueWake.
// There is no ordering guarantee among wakers, matching spec.md §4.4.
func (q *Queue) Wake() {
	q.mu.Lock()
	head := q.head
	q.head = nil
	q.mu.Unlock()

	for cur := head; cur != nil; cur = cur.next {
		close(cur.wake)
	}
}
