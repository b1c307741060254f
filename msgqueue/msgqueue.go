// Package msgqueue implements the inter-task message queue from spec.md
// §4.6, grounded on original_source's message_queues.cpp: one FIFO per
// receiving task, created lazily on first use, capped in total bytes
// rather than message count, with an optional transaction-id filter on
// receive and blocking sends/receives that park on a wait queue instead
// of busy-polling.
package msgqueue

import (
	"sync"

	"github.com/maxdev1/ghostkernel/hashmap"
	"github.com/maxdev1/ghostkernel/waitqueue"
)

// Status mirrors the original's G_MESSAGE_SEND_STATUS / G_MESSAGE_RECEIVE_STATUS.
type Status int

const (
	Success Status = iota
	Empty
	Full
	ExceedsMaximum
)

// messageHeaderSize approximates sizeof(g_message_header) (length,
// transaction id, sender) that the original counts against a queue's
// content cap alongside the payload itself, per message_queues.cpp's
// `lengthWithHeader = sizeof(g_message_header) + length`.
const messageHeaderSize = 16

// maxMessageBytes mirrors G_MESSAGE_MAXIMUM_MESSAGE_LENGTH: the largest
// single message, payload plus messageHeaderSize, a queue will ever accept, checked before any
// queuing is attempted regardless of how much space the queue has free.
const maxMessageBytes = 4096

// maxQueueBytes mirrors G_MESSAGE_MAXIMUM_QUEUE_CONTENT: the total
// content (payload + header) a receiver's queue may hold across every
// buffered message.
const maxQueueBytes = 64 * 1024

// Message is one queued message. Transaction lets a receiver filter for
// the reply to a specific request, mirroring the original's
// transaction-id matching in messageQueuesReceive.
type Message struct {
	SenderTaskID int32
	Transaction  int64
	Data         []byte
}

// NoTransaction is the filter value meaning "accept any message",
// matching the original's G_MESSAGE_TRANSACTION_NONE.
const NoTransaction int64 = -1

type queue struct {
	mu           sync.Mutex
	messages     []*Message
	usedBytes    int
	maxQueueSize int
	readers      waitqueue.Queue
	senders      waitqueue.Queue
}

func newQueue(maxQueueSize int) *queue {
	if maxQueueSize <= 0 {
		maxQueueSize = maxQueueBytes
	}
	return &queue{maxQueueSize: maxQueueSize}
}

// Table is the process-wide (or global, if shared) map from receiver task
// id to that task's queue, mirroring the hashmap-backed
// _messageQueuesGetOrCreate in the original.
type Table struct {
	queues *hashmap.Map[int32, *queue]
}

func NewTable() *Table {
	return &Table{queues: hashmap.New[int32, *queue](32)}
}

func (t *Table) queueFor(receiver int32) *queue {
	return t.queues.GetOrCreate(receiver, func() *queue { return newQueue(maxQueueBytes) })
}

// TaskRemoved drops receiver's entire queue, mirroring
// messageQueueTaskRemoved: once a task is gone nothing will ever receive
// from its queue again, so there is no point holding its buffered
// messages (or its blocked senders/receivers) any longer.
func (t *Table) TaskRemoved(receiver int32) {
	if q, ok := t.queues.Get(receiver); ok {
		q.mu.Lock()
		q.messages = nil
		q.usedBytes = 0
		q.mu.Unlock()
		q.readers.Wake()
		q.senders.Wake()
	}
	t.queues.Remove(receiver)
}

// Send enqueues data for receiver, tagged with transaction. A single
// message whose length plus header exceeds maxMessageBytes always
// returns ExceedsMaximum, regardless of blocking or the queue's current
// occupancy, mirroring the original's upfront size check before any
// queuing is attempted. Otherwise, if the queue doesn't have room right
// now: blocking false returns Full immediately; blocking true parks the
// sender on the queue's senders wait-queue until Receive frees space.
func (t *Table) Send(receiver, sender int32, data []byte, transaction int64, blocking bool) Status {
	q := t.queueFor(receiver)
	lengthWithHeader := messageHeaderSize + len(data)

	if lengthWithHeader > maxMessageBytes {
		return ExceedsMaximum
	}

	for {
		q.mu.Lock()
		if q.usedBytes+lengthWithHeader <= q.maxQueueSize {
			msg := &Message{SenderTaskID: sender, Transaction: transaction, Data: data}
			q.messages = append(q.messages, msg)
			q.usedBytes += lengthWithHeader
			q.mu.Unlock()
			q.readers.Wake()
			return Success
		}
		if !blocking {
			q.mu.Unlock()
			return Full
		}
		wake := q.senders.Add(sender)
		q.mu.Unlock()
		<-wake
	}
}

// Receive dequeues the oldest message matching transactionFilter
// (NoTransaction matches anything). If none is available and blocking is
// false it returns Empty immediately. A successful dequeue wakes every
// sender parked on this queue's senders wait-queue, mirroring the
// original's waitQueueWake(&queue->waitersSend) once room has opened up.
func (t *Table) Receive(receiver int32, transactionFilter int64, blocking bool) (*Message, Status) {
	q := t.queueFor(receiver)

	for {
		q.mu.Lock()
		for i, m := range q.messages {
			if transactionFilter == NoTransaction || m.Transaction == transactionFilter {
				q.messages = append(q.messages[:i], q.messages[i+1:]...)
				q.usedBytes -= messageHeaderSize + len(m.Data)
				q.mu.Unlock()
				q.senders.Wake()
				return m, Success
			}
		}
		if !blocking {
			q.mu.Unlock()
			return nil, Empty
		}
		wake := q.readers.Add(receiver)
		q.mu.Unlock()
		<-wake
	}
}
